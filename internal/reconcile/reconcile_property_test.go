package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"bracket-trader/internal/models"
)

var rawStatuses = []interface{}{"COMPLETE", "OPEN", "TRIGGER PENDING", "CANCELLED", "REJECTED", "", "VALIDATION PENDING"}

// Property: a cancel is issued exactly when one protective leg is filled
// and the other is open, at most once however often the same snapshot is
// reconciled.
func TestProperty_ReconcileCancelsAtMostOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("cancel iff exactly one filled and the other open", prop.ForAll(
		func(sl, tg string, passes int) bool {
			b := &cancelBroker{}
			r := NewReconciler(b, zerolog.Nop())
			g := protectedGroup("g")
			snapshot := rows(g, sl, tg)

			for i := 0; i < passes; i++ {
				r.Reconcile(context.Background(), []*models.BracketGroup{g}, snapshot)
			}

			slStatus, tgStatus := models.ParseLegStatus(sl), models.ParseLegStatus(tg)
			want := 0
			if (slStatus == models.LegFilled && tgStatus == models.LegOpen) || (tgStatus == models.LegFilled && slStatus == models.LegOpen) {
				want = 1
			}
			return len(b.cancelled) == want
		},
		gen.OneConstOf(rawStatuses...),
		gen.OneConstOf(rawStatuses...),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
