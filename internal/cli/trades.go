package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nifty-options-trader/internal/models"
)

// addTradesCommands adds trade log commands.
func addTradesCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Trade log",
		Long:  "Inspect and export the trade log.",
	}

	cmd.AddCommand(newTradesListCmd(app))
	cmd.AddCommand(newTradesExportCmd(app))

	rootCmd.AddCommand(cmd)
}

// tradeFilterFromFlags builds a store filter from the shared flags.
func tradeFilterFromFlags(cmd *cobra.Command) (models.TradeFilter, error) {
	filter := models.TradeFilter{}

	filter.Symbol, _ = cmd.Flags().GetString("symbol")
	status, _ := cmd.Flags().GetString("status")
	filter.Status = models.TradeStatus(status)
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	if since, _ := cmd.Flags().GetString("since"); since != "" {
		from, err := time.Parse("2006-01-02", since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since date %q, want YYYY-MM-DD", since)
		}
		filter.From = from
	}

	return filter, nil
}

func addTradeFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("symbol", "", "filter by option symbol")
	cmd.Flags().String("status", "", "filter by status (OPEN, CLOSED, FAILED)")
	cmd.Flags().String("since", "", "only trades entered on or after this date (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 50, "maximum number of trades")
}

func newTradesListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logged trades",
		Example: `  trader trades list
  trader trades list --status CLOSED --limit 20
  trader trades list --since 2025-08-01 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Trades == nil {
				output.Error("Trade store unavailable")
				return fmt.Errorf("trade store unavailable")
			}

			filter, err := tradeFilterFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			trades, err := app.Trades.GetTrades(ctx, filter)
			if err != nil {
				output.Error("Failed to load trades: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(trades)
			}

			if len(trades) == 0 {
				output.Info("No trades found")
				return nil
			}

			table := NewTable(output, "ENTERED", "SYMBOL", "DIR", "EXPIRY", "QTY", "ENTRY", "EXIT", "PNL", "STATUS", "REASON")
			var totalPnL float64
			var closed, wins, losses int
			for _, t := range trades {
				exit := "-"
				if t.Status == models.TradeClosed {
					exit = FormatPrice(t.ExitPrice)
					totalPnL += t.PnL
					closed++
					if t.PnL > 0 {
						wins++
					} else if t.PnL < 0 {
						losses++
					}
				}
				table.AddRow(
					FormatDateTime(t.EnteredAt),
					t.Symbol,
					string(t.Direction),
					FormatDate(t.Expiry),
					FormatQuantity(int64(t.Quantity)),
					FormatPrice(t.EntryPrice),
					exit,
					output.FormatPnL(t.PnL),
					string(t.Status),
					t.Reason,
				)
			}
			table.Render()

			output.Println()
			if closed > 0 {
				winRate := float64(wins) / float64(closed) * 100
				output.Printf("Closed: %d (%d wins / %d losses, win rate %s)\n", closed, wins, losses, FormatPercent(winRate))
			}
			output.Printf("Total realized P&L: %s\n", output.FormatPnL(totalPnL))
			return nil
		},
	}

	addTradeFilterFlags(cmd)
	return cmd
}

func newTradesExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trades as CSV",
		Example: `  trader trades export
  trader trades export --output trades.csv --status CLOSED`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Trades == nil {
				output.Error("Trade store unavailable")
				return fmt.Errorf("trade store unavailable")
			}

			filter, err := tradeFilterFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			path, _ := cmd.Flags().GetString("output")
			if path == "" {
				return app.Trades.ExportCSV(ctx, cmd.OutOrStdout(), filter)
			}

			f, err := os.Create(path)
			if err != nil {
				output.Error("Cannot create %s: %v", path, err)
				return err
			}
			defer f.Close()

			if err := app.Trades.ExportCSV(ctx, f, filter); err != nil {
				output.Error("Export failed: %v", err)
				return err
			}

			output.Success("✓ Exported to %s", path)
			return nil
		},
	}

	addTradeFilterFlags(cmd)
	cmd.Flags().String("output", "", "write CSV to this file (default: stdout)")
	return cmd
}
