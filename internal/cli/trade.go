package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/metrics"
	"bracket-trader/internal/models"
	"bracket-trader/internal/orders"
	"bracket-trader/internal/reconcile"
	"bracket-trader/internal/risk"
	"bracket-trader/internal/trading"
	"bracket-trader/pkg/utils"
)

// addTradingCommands adds the session and order commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newSizeCmd(app))
	rootCmd.AddCommand(newOrdersCmd(app))
	rootCmd.AddCommand(newReconcileCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run today's trading session",
		Long: `Run the trading day: wait for the session start, compute opening ranges,
then scan for breakouts and reconcile brackets every polling interval until
the session end. Ctrl+C stops the loop after the current placement.`,
		Example: `  trader run
  trader run --wait   # start before 09:20 and wait for the session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sessCfg, execCfg, fetchCfg, err := app.SessionConfig()
			if err != nil {
				return err
			}

			now := time.Now()
			if !utils.IsTradingDay(now) {
				return trading.ErrNotTradingDay
			}
			if wait, _ := cmd.Flags().GetBool("wait"); !wait && now.Before(sessCfg.Start.On(now)) {
				return fmt.Errorf("session starts at %s IST, use --wait to wait for it", sessCfg.Start)
			}

			kite, err := app.Kite()
			if err != nil {
				return err
			}
			if err := kite.Login(ctx); err != nil {
				return err
			}

			client, err := app.Client()
			if err != nil {
				return err
			}
			journal, err := app.Journal()
			if err != nil {
				return err
			}

			session := trading.NewSession(client, journal, sessCfg, execCfg, fetchCfg, app.Logger)

			if app.Config.Metrics.Enabled {
				srv := metrics.NewServer(app.Config.Metrics.Listen, session.Book(), app.Logger)
				srv.Start()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			mode := "LIVE"
			if sessCfg.Paper {
				mode = "PAPER"
			}
			output.Info("Starting %s session for %d tickers (%s to %s IST)",
				mode, len(sessCfg.Tickers), sessCfg.Start, sessCfg.End)

			if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			output.Success("Session finished with %d open brackets", session.Book().Len())
			return nil
		},
	}

	cmd.Flags().Bool("wait", false, "wait for the session start instead of refusing")
	return cmd
}

func newSizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size SYMBOL",
		Short: "Preview the bracket for a trade",
		Long: `Size a trade with the configured risk parameters and print the three
orders that would be sent. Nothing is submitted.`,
		Example: `  trader size INFY --capital 500000 --entry 1501 --stop 1470.98`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			capital, _ := cmd.Flags().GetFloat64("capital")
			entry, _ := cmd.Flags().GetFloat64("entry")
			stop, _ := cmd.Flags().GetFloat64("stop")

			params := models.RiskParameters{
				RiskFraction: app.Config.Risk.RiskFraction,
				RewardToRisk: app.Config.Risk.RewardToRisk,
			}
			sizing, err := risk.Size(capital, entry, stop, params)
			if err != nil {
				return err
			}

			side := models.OrderSideBuy
			if entry < stop {
				side = models.OrderSideSell
			}
			inst := models.Instrument{
				Symbol:   args[0],
				Exchange: models.Exchange(app.Config.Trading.Exchange),
				TickSize: risk.DefaultTickSize,
			}
			intents := orders.Build(inst, side, sizing.Quantity, entry, stop, sizing.Target, app.orderOptions())

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"quantity":       sizing.Quantity,
					"target":         sizing.Target,
					"per_share_risk": sizing.PerShareRisk,
					"risk_budget":    sizing.RiskBudget,
					"entry":          intents.Entry,
					"stop_loss":      intents.StopLoss,
					"target_order":   intents.Target,
				})
			}

			output.Bold("%s %s", output.Side(string(side)), inst.Symbol)
			output.Printf("  Risk budget:     %s\n", utils.FormatIndianCurrency(sizing.RiskBudget))
			output.Printf("  Per-share risk:  %.2f\n", sizing.PerShareRisk)
			output.Printf("  Quantity:        %s\n", utils.FormatQuantity(int64(sizing.Quantity)))
			output.Println()

			if sizing.Skip() {
				output.Warning("Risk budget does not cover one share, the trade would be skipped")
				return nil
			}

			table := NewTable(output, "LEG", "SIDE", "TYPE", "QTY", "PRICE", "TRIGGER")
			for _, in := range []models.OrderIntent{intents.Entry, intents.StopLoss, intents.Target} {
				table.AddRow(
					string(in.Role),
					output.Side(string(in.Side)),
					string(in.Type),
					fmt.Sprintf("%d", in.Quantity),
					priceCell(in.Price),
					priceCell(in.TriggerPrice),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Float64("capital", 0, "trade capital")
	cmd.Flags().Float64("entry", 0, "entry price")
	cmd.Flags().Float64("stop", 0, "stop price")
	cmd.MarkFlagRequired("capital")
	cmd.MarkFlagRequired("entry")
	cmd.MarkFlagRequired("stop")
	return cmd
}

func priceCell(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// orderBook reads today's Kite order book. Paper orders never reach Kite.
func orderBook(ctx context.Context, app *App, output *Output) ([]models.OrderRow, error) {
	kite, err := app.Kite()
	if err != nil {
		return nil, err
	}
	if app.Config.IsPaperMode() {
		output.Dim("Paper mode: simulated orders are not in the Kite order book")
	}
	return broker.NewPaced(kite, app.Config.Execution.PacingRate, app.Config.Execution.PacingBurst).GetOrderBook(ctx)
}

func newOrdersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Show today's order book",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			rows, err := orderBook(ctx, app, output)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Info("No orders today")
				return nil
			}

			table := NewTable(output, "ORDER", "SYMBOL", "SIDE", "QTY", "PRICE", "STATUS", "TIME")
			for _, r := range rows {
				table.AddRow(
					r.OrderID,
					r.Symbol,
					output.Side(string(r.Side)),
					fmt.Sprintf("%d", r.Quantity),
					priceCell(r.Price),
					r.Status,
					r.PlacedAt.In(utils.IndiaLocation).Format("15:04:05"),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newReconcileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report the OCO state of journaled brackets",
		Long: `Compare the brackets journaled for a day with the current order book and
report what the reconciler would do for each one. Nothing is cancelled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			day, err := parseDay(cmd)
			if err != nil {
				return err
			}
			journal, err := app.Journal()
			if err != nil {
				return err
			}
			groups, err := trading.LoadGroups(ctx, journal, day)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				output.Info("No brackets journaled on %s", day.Format("2006-01-02"))
				return nil
			}

			rows, err := orderBook(ctx, app, output)
			if err != nil {
				return err
			}

			findings := reconcile.Inspect(groups, rows)
			if output.IsJSON() {
				return output.JSON(findings)
			}

			table := NewTable(output, "GROUP", "SYMBOL", "ENTRY", "STOP", "TARGET", "ACTION")
			for _, f := range findings {
				action := string(f.Action)
				if f.Action == reconcile.ActionBreach {
					action = output.Red(action)
				} else if f.Action != reconcile.ActionNone {
					action = output.Yellow(action)
				}
				table.AddRow(f.GroupID, f.Symbol, string(f.Entry), string(f.StopLoss), string(f.Target), action)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("date", "", "trading day as YYYY-MM-DD (default today)")
	return cmd
}

// parseDay reads --date in IST, defaulting to today.
func parseDay(cmd *cobra.Command) (time.Time, error) {
	s, _ := cmd.Flags().GetString("date")
	if s == "" {
		return time.Now().In(utils.IndiaLocation), nil
	}
	day, err := time.ParseInLocation("2006-01-02", s, utils.IndiaLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return day, nil
}
