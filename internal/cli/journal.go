package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bracket-trader/internal/models"
	"bracket-trader/internal/store"
	"bracket-trader/pkg/utils"
)

// addJournalCommands adds journal commands.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal",
		Long:  "Review and export the brackets, events and daily PnL recorded by the session.",
	}

	cmd.AddCommand(newJournalListCmd(app))
	cmd.AddCommand(newJournalEventsCmd(app))
	cmd.AddCommand(newJournalPnLCmd(app))
	cmd.AddCommand(newJournalExportCmd(app))

	rootCmd.AddCommand(cmd)
}

func newJournalListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled brackets",
		Example: `  trader journal list
  trader journal list --symbol INFY --limit 20
  trader journal list --date 2024-01-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			filter, err := tradeFilter(cmd)
			if err != nil {
				return err
			}
			journal, err := app.Journal()
			if err != nil {
				return err
			}
			trades, err := journal.GetTrades(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Info("No trades recorded")
				return nil
			}
			renderTrades(output, trades)
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().String("date", "", "trading day as YYYY-MM-DD")
	cmd.Flags().Int("limit", 50, "maximum rows")
	return cmd
}

func tradeFilter(cmd *cobra.Command) (store.TradeFilter, error) {
	symbol, _ := cmd.Flags().GetString("symbol")
	limit, _ := cmd.Flags().GetInt("limit")
	filter := store.TradeFilter{Symbol: strings.ToUpper(symbol), Limit: limit}

	if s, _ := cmd.Flags().GetString("date"); s != "" {
		day, err := parseDay(cmd)
		if err != nil {
			return filter, err
		}
		filter.StartDate = utils.ClockTime{}.On(day)
		filter.EndDate = filter.StartDate.AddDate(0, 0, 1)
	}
	return filter, nil
}

func renderTrades(output *Output, trades []models.Trade) {
	table := NewTable(output, "TIME", "GROUP", "SYMBOL", "SIDE", "QTY", "ENTRY", "STOP", "TARGET", "STATE")
	for _, t := range trades {
		state := t.State
		switch models.GroupState(t.State) {
		case models.GroupDegraded:
			state = output.Red(state)
		case models.GroupAborted:
			state = output.Yellow(state)
		}
		if t.IsPaper {
			state += " (paper)"
		}
		table.AddRow(
			t.Timestamp.In(utils.IndiaLocation).Format("01-02 15:04"),
			t.GroupID,
			t.Symbol,
			output.Side(string(t.Side)),
			fmt.Sprintf("%d", t.Quantity),
			priceCell(t.EntryPrice),
			priceCell(t.StopPrice),
			priceCell(t.Target),
			state,
		)
	}
	table.Render()
}

func newJournalEventsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "events GROUP",
		Short: "Show the event history of a bracket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			journal, err := app.Journal()
			if err != nil {
				return err
			}
			events, err := journal.GetEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Info("No events for %s", args[0])
				return nil
			}

			table := NewTable(output, "TIME", "EVENT", "LEG", "ORDER", "DETAIL")
			for _, e := range events {
				table.AddRow(
					e.Timestamp.In(utils.IndiaLocation).Format("15:04:05"),
					e.Event,
					string(e.Role),
					e.OrderID,
					e.Detail,
				)
			}
			table.Render()
			return nil
		},
	}
}

func newJournalPnLCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Show the end-of-day PnL for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := dailyPnL(cmd, app)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Info("No PnL recorded")
				return nil
			}

			var total float64
			table := NewTable(output, "SYMBOL", "QTY", "PNL")
			for _, r := range rows {
				total += r.PnL
				table.AddRow(r.Symbol, fmt.Sprintf("%d", r.Quantity), output.FormatPnL(r.PnL))
			}
			table.Render()
			output.Println()
			output.Printf("Total: %s\n", output.FormatPnL(total))
			return nil
		},
	}

	cmd.Flags().String("date", "", "trading day as YYYY-MM-DD (default today)")
	return cmd
}

func dailyPnL(cmd *cobra.Command, app *App) ([]models.DailyPnL, error) {
	day, err := parseDay(cmd)
	if err != nil {
		return nil, err
	}
	journal, err := app.Journal()
	if err != nil {
		return nil, err
	}
	return journal.GetDailyPnL(cmd.Context(), day.Format("2006-01-02"))
}

func newJournalExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trades or daily PnL as CSV",
		Example: `  trader journal export --out trades.csv
  trader journal export --pnl --date 2024-01-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if pnl, _ := cmd.Flags().GetBool("pnl"); pnl {
				rows, err := dailyPnL(cmd, app)
				if err != nil {
					return err
				}
				return store.ExportDailyPnL(w, rows)
			}

			filter, err := tradeFilter(cmd)
			if err != nil {
				return err
			}
			journal, err := app.Journal()
			if err != nil {
				return err
			}
			trades, err := journal.GetTrades(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return store.ExportTrades(w, trades)
		},
	}

	cmd.Flags().String("out", "", "output file (default stdout)")
	cmd.Flags().Bool("pnl", false, "export daily PnL instead of trades")
	cmd.Flags().String("symbol", "", "filter trades by symbol")
	cmd.Flags().String("date", "", "trading day as YYYY-MM-DD")
	cmd.Flags().Int("limit", 0, "maximum trade rows (0 for all)")
	return cmd
}
