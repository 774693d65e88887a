package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nifty-options-trader/internal/broker"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/internal/runner"
	"nifty-options-trader/pkg/utils"
)

// addRunCommands adds the strategy loop commands.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newPaperCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the strategy live",
		Long: `Run the inside-bar breakout strategy against the live market.

Every polling cycle the hourly and 15-minute frames are rebuilt from
minute data, scanned for an inside bar and a volume-confirmed breakout,
and at most one ATM weekly option position is opened. Open positions
are managed on a separate tick until flat.

Requires an authenticated Zerodha session ('trader login') and
trading.mode = "live" in config.toml.`,
		Example: `  trader run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Config.IsPaperMode() {
				output.Error("Config is in paper mode. Use 'trader paper' or set trading.mode = \"live\"")
				return fmt.Errorf("paper mode configured")
			}
			if app.Zerodha == nil || !app.Zerodha.IsAuthenticated() {
				output.Error("Not authenticated. Run 'trader login' first")
				return fmt.Errorf("not authenticated")
			}

			output.Warning("LIVE MODE: real orders will be placed")
			return runLoop(cmd, app, app.Broker)
		},
	}
}

func newPaperCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "paper",
		Short: "Run the strategy in paper trading mode",
		Long: `Run the strategy with simulated order fills.

Signal detection uses real market data when a Zerodha session is
available; orders are filled instantly at the last traded price and
recorded in the trade log with the paper flag set.`,
		Example: `  trader paper`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Zerodha == nil || !app.Zerodha.IsAuthenticated() {
				output.Warning("No authenticated session; paper trading without live market data will skip every cycle")
			}

			// The app broker is already a paper broker when the config
			// says paper; force the mode when the config says live.
			b := app.Broker
			if !app.Config.IsPaperMode() {
				app.Config.Trading.Mode = "paper"
				var data broker.Broker
				if app.Zerodha != nil {
					data = app.Zerodha
				}
				b = broker.NewPaperBroker(data)
			}

			output.Info("Paper mode: orders are simulated")
			return runLoop(cmd, app, b)
		},
	}
}

func runLoop(cmd *cobra.Command, app *App, b broker.Broker) error {
	output := NewOutput(cmd)

	if app.Trades == nil {
		output.Error("Trade store unavailable, refusing to run without a trade log")
		return fmt.Errorf("trade store unavailable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := runner.New(app.Config, b, app.Trades, app.Logger)

	marketStatus := utils.GetMarketStatus()
	output.Printf("Market: %s\n", output.MarketStatus(string(marketStatus)))
	if marketStatus == models.MarketClosed {
		output.Info("Next market open: %s", FormatDateTime(utils.GetNextMarketOpen()))
	}

	output.Info("Strategy running on %s, Ctrl+C to stop", app.Config.Trading.Underlying)
	err := r.Run(ctx)

	status := r.Status()
	output.Println()
	output.Bold("Session Summary")
	output.Printf("  Cycles:        %d\n", status.Cycles)
	output.Printf("  Signals:       %d\n", status.Signals)
	output.Printf("  Trades Opened: %d\n", status.TradesOpened)
	if status.CycleErrors > 0 {
		output.Warning("  Cycle Errors:  %d", status.CycleErrors)
	}

	return err
}
