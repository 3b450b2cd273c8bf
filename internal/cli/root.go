package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bracket-trader/internal/broker"
	"bracket-trader/internal/config"
	"bracket-trader/internal/execution"
	"bracket-trader/internal/logging"
	"bracket-trader/internal/models"
	"bracket-trader/internal/orders"
	"bracket-trader/internal/store"
	"bracket-trader/internal/strategy"
	"bracket-trader/internal/trading"
	"bracket-trader/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-01-01"
)

// App holds the application dependencies. Brokerage and journal
// connections are opened on first use.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	configDir string
	kite      *broker.KiteBroker
	client    broker.Client
	journal   store.Journal
}

// Kite returns the Kite connection.
func (a *App) Kite() (*broker.KiteBroker, error) {
	if a.kite != nil {
		return a.kite, nil
	}
	creds := a.Config.Credentials.Kite
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, fmt.Errorf("kite api_key and api_secret are not configured, edit %s/credentials.toml", a.configDir)
	}
	a.kite = broker.NewKiteBroker(broker.KiteConfig{
		APIKey:           creds.APIKey,
		APISecret:        creds.APISecret,
		UserID:           creds.UserID,
		Password:         creds.Password,
		TOTPSecret:       creds.TOTPSecret,
		TokenPath:        a.Config.Store.SessionPath,
		Timeout:          a.Config.Execution.Timeout,
		RestrictionHints: a.Config.Execution.RestrictionHints,
	}, a.Logger)
	return a.kite, nil
}

// Client returns the paced brokerage client. In paper mode orders go to a
// simulated book fed with Kite market data.
func (a *App) Client() (broker.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	kite, err := a.Kite()
	if err != nil {
		return nil, err
	}
	paced := broker.NewPaced(kite, a.Config.Execution.PacingRate, a.Config.Execution.PacingBurst)
	if a.Config.IsPaperMode() {
		a.client = broker.NewPaperBroker(broker.PaperBrokerConfig{
			Data:           paced,
			InitialCapital: a.Config.Trading.PaperCapital,
		})
	} else {
		a.client = paced
	}
	return a.client, nil
}

// Journal returns the trade journal.
func (a *App) Journal() (store.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	a.journal = j
	return a.journal, nil
}

// Close releases the journal.
func (a *App) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("closing journal")
		}
		a.journal = nil
	}
}

// SessionConfig maps the loaded configuration onto a trading session.
func (a *App) SessionConfig() (trading.Config, execution.Config, strategy.FetchConfig, error) {
	c := a.Config
	sc := trading.DefaultConfig()
	sc.Exchange = models.Exchange(c.Trading.Exchange)
	sc.Tickers = c.Trading.Tickers
	sc.Risk = models.RiskParameters{RiskFraction: c.Risk.RiskFraction, RewardToRisk: c.Risk.RewardToRisk}
	sc.VolumeLookback = c.Strategy.VolumeLookback
	sc.EntryOffset = c.Strategy.EntryOffset
	sc.StopPct = c.Strategy.StopPct
	sc.PollingInterval = c.Session.PollingInterval
	sc.Paper = c.IsPaperMode()

	var err error
	if sc.RangeEnd, err = utils.ParseClock(c.Strategy.OpeningRangeEnd); err != nil {
		return sc, execution.Config{}, strategy.FetchConfig{}, fmt.Errorf("opening_range_end: %w", err)
	}
	if sc.Start, err = utils.ParseClock(c.Session.Start); err != nil {
		return sc, execution.Config{}, strategy.FetchConfig{}, fmt.Errorf("session start: %w", err)
	}
	if sc.End, err = utils.ParseClock(c.Session.End); err != nil {
		return sc, execution.Config{}, strategy.FetchConfig{}, fmt.Errorf("session end: %w", err)
	}

	ec := execution.DefaultConfig()
	ec.RetryCount = c.Execution.RetryCount
	ec.RetryDelay = c.Execution.RetryDelay
	if len(c.Execution.RestrictionCodes) > 0 {
		ec.RestrictionCodes = c.Execution.RestrictionCodes
	}
	ec.Orders = a.orderOptions()

	fc := strategy.FetchConfig{
		Interval:    c.Strategy.BarInterval,
		HistoryDays: c.Strategy.HistoryDays,
		Retries:     c.Strategy.BarRetries,
		RetryDelay:  c.Strategy.BarRetryDelay,
		Concurrency: c.Strategy.FetchConcurrency,
	}
	return sc, ec, fc, nil
}

func (a *App) orderOptions() orders.Options {
	opts := orders.DefaultOptions()
	opts.Product = models.ProductType(a.Config.Trading.Product)
	if strings.EqualFold(a.Config.Execution.EntryOrderType, string(models.OrderTypeMarket)) {
		opts.EntryType = models.OrderTypeMarket
	}
	return opts
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Intraday opening range breakout trader for Kite Connect",
		Long: `Bracket Trader watches a list of NSE equities, detects opening range
breakouts on volume and protects every entry with a stop-loss and a target
that cancel each other once one of them fills.

Use 'trader run' during market hours to start the trading day.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return app.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/bracket-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAuthCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)

	return rootCmd
}

func (a *App) load(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	a.configDir = dir

	cfg, err := config.Load(dir)
	if err != nil {
		if errors.Is(err, config.ErrTemplateCreated) {
			NewOutput(cmd).Warning("Created configuration templates in %s, fill them in and run again", dir)
		}
		return err
	}
	a.Config = cfg

	a.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.Path,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{"skipConfig": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Bracket Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			redacted := app.Config.Redacted()
			if output.IsJSON() {
				return output.JSON(redacted)
			}
			showConfig(output, &redacted)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{"skipConfig": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if _, _, _, err := app.SessionConfig(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading")
	output.Printf("  Mode:      %s\n", cfg.Trading.Mode)
	output.Printf("  Exchange:  %s\n", cfg.Trading.Exchange)
	output.Printf("  Product:   %s\n", cfg.Trading.Product)
	output.Printf("  Tickers:   %s\n", strings.Join(cfg.Trading.Tickers, ", "))
	if cfg.IsPaperMode() {
		output.Printf("  Capital:   %s\n", utils.FormatIndianCurrency(cfg.Trading.PaperCapital))
	}
	output.Println()

	output.Bold("Risk")
	output.Printf("  Risk per trade:  %.2f%%\n", cfg.Risk.RiskFraction*100)
	output.Printf("  Reward to risk:  %.2f\n", cfg.Risk.RewardToRisk)
	output.Println()

	output.Bold("Execution")
	output.Printf("  Entry order:     %s\n", cfg.Execution.EntryOrderType)
	output.Printf("  Retries:         %d every %s\n", cfg.Execution.RetryCount, cfg.Execution.RetryDelay)
	output.Printf("  Restrictions:    %s\n", strings.Join(cfg.Execution.RestrictionCodes, ", "))
	output.Printf("  Pacing:          %.1f/s burst %d\n", cfg.Execution.PacingRate, cfg.Execution.PacingBurst)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Range end:       %s\n", cfg.Strategy.OpeningRangeEnd)
	output.Printf("  Volume lookback: %d bars\n", cfg.Strategy.VolumeLookback)
	output.Printf("  Entry offset:    %.2f\n", cfg.Strategy.EntryOffset)
	output.Printf("  Stop:            %.2f%%\n", cfg.Strategy.StopPct*100)
	output.Println()

	output.Bold("Session")
	output.Printf("  Window:  %s to %s every %s\n", cfg.Session.Start, cfg.Session.End, cfg.Session.PollingInterval)
	output.Println()

	output.Bold("Credentials")
	output.Printf("  API key:  %s\n", cfg.Credentials.Kite.APIKey)
	output.Printf("  User:     %s\n", cfg.Credentials.Kite.UserID)
}
