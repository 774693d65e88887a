package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nifty-options-trader/internal/backtest"
	"nifty-options-trader/internal/marketdata"
)

// addBacktestCommand adds the historical replay command.
func addBacktestCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the strategy over recent history",
		Long: `Replay the inside-bar breakout strategy over historical candles.

Minute data for the configured underlying is fetched through the
broker, aggregated into hourly and 15-minute frames, and every inside
bar is traded with the same detection, sizing and exit rules the live
runner applies. Option premiums are approximated by intrinsic value.`,
		Example: `  trader backtest
  trader backtest --days 30 --capital 200000 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Broker == nil {
				output.Error("No market data source. Run 'trader login' first")
				return fmt.Errorf("no market data source")
			}

			days, _ := cmd.Flags().GetInt("days")
			capital, _ := cmd.Flags().GetFloat64("capital")
			if capital <= 0 {
				return fmt.Errorf("--capital must be positive")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			data := marketdata.NewService(app.Broker, app.Config.MarketData.RateLimitInterval, days, app.Logger)
			hourly, fifteen, err := data.Frames(ctx, app.Config.Trading.Underlying, time.Now())
			if err != nil {
				output.Error("History fetch failed: %v", err)
				return err
			}

			result := backtest.New(app.Config, app.Logger).Run(hourly, fifteen, capital)

			if output.IsJSON() {
				return output.JSON(result)
			}
			renderBacktest(output, result)
			return nil
		},
	}

	cmd.Flags().Int("days", 30, "days of minute history to replay")
	cmd.Flags().Float64("capital", 100000, "starting capital in rupees")

	rootCmd.AddCommand(cmd)
}

func renderBacktest(output *Output, result *backtest.Result) {
	if len(result.Trades) == 0 {
		output.Info("No trades in the replayed window")
		return
	}

	table := NewTable(output, "ENTERED", "SYMBOL", "DIR", "QTY", "ENTRY", "EXIT", "PNL", "REASON")
	for _, t := range result.Trades {
		table.AddRow(
			FormatDateTime(t.EntryTime),
			t.Symbol,
			string(t.Direction),
			FormatQuantity(int64(t.Quantity)),
			FormatPrice(t.EntryPrice),
			FormatPrice(t.ExitPrice),
			output.FormatPnL(t.PnL),
			t.Reason,
		)
	}
	table.Render()

	output.Println()
	output.Bold("Backtest Summary")
	output.Printf("  Trades:       %d (%d wins / %d losses)\n", len(result.Trades), result.Wins, result.Losses)
	output.Printf("  Win Rate:     %s\n", FormatPercent(result.WinRate))
	output.Printf("  Total P&L:    %s\n", output.FormatPnL(result.TotalPnL))
	if result.Wins > 0 {
		output.Printf("  Avg Win:      %s\n", output.FormatPnL(result.AvgWin))
	}
	if result.Losses > 0 {
		output.Printf("  Avg Loss:     %s\n", output.FormatPnL(result.AvgLoss))
	}
	output.Printf("  Max Drawdown: %s\n", FormatPercent(result.MaxDrawdownPct))
	output.Printf("  Capital:      %s -> %s (%s)\n",
		FormatIndianCurrency(result.InitialCapital),
		FormatIndianCurrency(result.FinalCapital),
		FormatPercent(result.ReturnPct))
}
