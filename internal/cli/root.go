// Package cli provides the command-line interface for the trading application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nifty-options-trader/internal/broker"
	"nifty-options-trader/internal/config"
	"nifty-options-trader/internal/logging"
	"nifty-options-trader/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-08-29"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Broker  broker.Broker
	Zerodha *broker.ZerodhaBroker
	Trades  store.TradeStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Credentials.Zerodha.APIKey != "" {
		app.Zerodha = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:      cfg.Credentials.Zerodha.APIKey,
			APISecret:   cfg.Credentials.Zerodha.APISecret,
			AccessToken: cfg.Credentials.Zerodha.AccessToken,
		})
		logger.Debug().Msg("Zerodha broker initialized")
	}

	// Live mode trades through Kite directly; paper mode simulates fills
	// while still sourcing market data from Kite when authenticated.
	if cfg.IsPaperMode() {
		var data broker.Broker
		if app.Zerodha != nil {
			data = app.Zerodha
		}
		app.Broker = broker.NewPaperBroker(data)
	} else if app.Zerodha != nil {
		app.Broker = app.Zerodha
	}

	tradeStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open trade store, trade logging unavailable")
	} else {
		app.Trades = tradeStore
		logger.Debug().Str("path", cfg.Store.Path).Msg("Trade store opened")
	}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "NIFTY options inside-bar breakout trader",
		Long: `An automated NIFTY index options trading assistant.

It scans the hourly chart for Inside Bar formations, confirms breakouts
on the 15-minute chart with volume, and trades ATM weekly options through
Zerodha Kite Connect with automated stop-loss, trailing and profit booking.

Use 'trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nifty-options-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAuthCommands(rootCmd, app)
	addRunCommands(rootCmd, app)
	addBacktestCommand(rootCmd, app)
	addTradesCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("nifty-options-trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Trading")
	output.Printf("  Mode:        %s\n", cfg.Trading.Mode)
	output.Printf("  Underlying:  %s\n", cfg.Trading.Underlying)
	output.Printf("  Product:     %s\n", cfg.Trading.Product)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Account Risk: %s\n", FormatIndianCurrency(cfg.Strategy.AccountRisk))
	output.Printf("  Lot Size:     %d\n", cfg.Strategy.LotSize)
	output.Printf("  ATM Offset:   %.0f\n", cfg.Strategy.ATMOffset)
	output.Printf("  SL Points:    %.0f\n", cfg.Strategy.SLPoints)
	output.Println()

	output.Bold("Position Rules")
	output.Printf("  Trail Points: %.0f\n", cfg.Position.TrailPoints)
	output.Printf("  Book1:        +%.0f (%.0f%%)\n", cfg.Position.Book1Points, cfg.Position.Book1Ratio*100)
	output.Printf("  Book2:        +%.0f (full)\n", cfg.Position.Book2Points)
	output.Printf("  Expiry Exit:  %s IST\n", cfg.Position.ExpiryExitTime)
	output.Println()

	output.Bold("Filters")
	output.Printf("  Strict:  %v\n", cfg.Filters.Strict)
	output.Printf("  Gap:     enabled=%v max=%.1f%%\n", cfg.Filters.GapEnabled, cfg.Filters.MaxGapPct)
	output.Printf("  IV:      enabled=%v band=[%.1f, %.1f]\n", cfg.Filters.IVEnabled, cfg.Filters.MinIV, cfg.Filters.MaxIV)
	output.Printf("  Spread:  enabled=%v max=%.1f%%\n", cfg.Filters.SpreadEnabled, cfg.Filters.MaxSpreadPct)
	output.Printf("  ATR:     enabled=%v band=[%.1f, %.1f]\n", cfg.Filters.ATREnabled, cfg.Filters.MinATRPct, cfg.Filters.MaxATRPct)

	return nil
}
