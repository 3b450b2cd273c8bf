package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bracket-trader/internal/models"
)

// BracketSource lists the live bracket groups.
type BracketSource interface {
	Snapshot() []models.BracketGroup
	Get(id string) (models.BracketGroup, bool)
}

// Server serves /metrics, /healthz and a read-only view of live brackets.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, brackets BracketSource, logger zerolog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           Routes(brackets),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "status_server").Logger(),
	}
}

// Routes builds the status router.
func Routes(brackets BracketSource) *mux.Router {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if brackets != nil {
		h := &bracketHandler{source: brackets}
		router.HandleFunc("/brackets", h.list).Methods(http.MethodGet)
		router.HandleFunc("/brackets/{id}", h.get).Methods(http.MethodGet)
	}

	return router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("status server stopped")
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type bracketHandler struct {
	source BracketSource
}

type legView struct {
	Role        models.LegRole     `json:"role"`
	OrderID     string             `json:"order_id,omitempty"`
	Side        models.OrderSide   `json:"side"`
	Type        models.OrderType   `json:"type"`
	Price       float64            `json:"price"`
	Status      models.LegStatus   `json:"status"`
	SubmitState models.SubmitState `json:"submit_state"`
	Attempts    int                `json:"attempts"`
	Fallback    bool               `json:"fallback,omitempty"`
}

type bracketView struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Side      models.OrderSide  `json:"side"`
	Quantity  int               `json:"quantity"`
	Entry     float64           `json:"entry"`
	Stop      float64           `json:"stop"`
	Target    float64           `json:"target"`
	State     models.GroupState `json:"state"`
	Reason    string            `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Legs      []legView         `json:"legs"`
}

func newBracketView(g models.BracketGroup) bracketView {
	v := bracketView{
		ID:        g.ID,
		Symbol:    g.Symbol,
		Side:      g.Side,
		Quantity:  g.Quantity,
		Entry:     g.Levels.Entry,
		Stop:      g.Levels.Stop,
		Target:    g.Levels.Target,
		State:     g.State,
		Reason:    g.Reason,
		CreatedAt: g.CreatedAt,
	}
	for _, leg := range []*models.OrderLeg{g.Entry, g.StopLoss, g.Target} {
		if leg == nil {
			continue
		}
		v.Legs = append(v.Legs, legView{
			Role:        leg.Role,
			OrderID:     leg.OrderID,
			Side:        leg.Side,
			Type:        leg.Type,
			Price:       leg.Price,
			Status:      leg.Status,
			SubmitState: leg.SubmitState,
			Attempts:    leg.Attempts,
			Fallback:    leg.Fallback,
		})
	}
	return v
}

func (h *bracketHandler) list(w http.ResponseWriter, _ *http.Request) {
	groups := h.source.Snapshot()
	views := make([]bracketView, 0, len(groups))
	for _, g := range groups {
		views = append(views, newBracketView(g))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *bracketHandler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	g, ok := h.source.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bracket not found"})
		return
	}
	writeJSON(w, http.StatusOK, newBracketView(g))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
