package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"macross/internal/errs"
)

type Source string

const (
	SourceAlpaca Source = "alpaca"
	SourceYahoo  Source = "yahoo"
	SourceCSV    Source = "csv"
)

const envPrefix = "MACROSS"

type Config struct {
	Strategy StrategyConfig `mapstructure:"strategy"`
	Data     DataConfig     `mapstructure:"data"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Live     LiveConfig     `mapstructure:"live"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Log      LogConfig      `mapstructure:"log"`

	// Credentials only ever come from the environment.
	Alpaca AlpacaCredentials `mapstructure:"-"`
	Email  EmailCredentials  `mapstructure:"-"`
}

type StrategyConfig struct {
	Symbol      string `mapstructure:"symbol"`
	ShortWindow int    `mapstructure:"short_window"`
	LongWindow  int    `mapstructure:"long_window"`
}

type DataConfig struct {
	Source  Source `mapstructure:"source"`
	CSVPath string `mapstructure:"csv_path"`
	Feed    string `mapstructure:"feed"`
	MaxFill int    `mapstructure:"max_fill"`
	// MinBars of 0 means the long window.
	MinBars      int `mapstructure:"min_bars"`
	LookbackDays int `mapstructure:"lookback_days"`
}

type BacktestConfig struct {
	Start          string  `mapstructure:"start"`
	End            string  `mapstructure:"end"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	FeePct         float64 `mapstructure:"fee_pct"`
	JournalPath    string  `mapstructure:"journal_path"`
	LedgerCSV      string  `mapstructure:"ledger_csv"`
	ReportPath     string  `mapstructure:"report_path"`
}

type LiveConfig struct {
	CashBuffer        float64       `mapstructure:"cash_buffer"`
	MaxDailyLossPct   float64       `mapstructure:"max_daily_loss_pct"`
	StaleAfterDays    int           `mapstructure:"stale_after_days"`
	ConfirmDelay      time.Duration `mapstructure:"confirm_delay"`
	ConfirmAttempts   int           `mapstructure:"confirm_attempts"`
	ConfirmBackoff    float64       `mapstructure:"confirm_backoff"`
	DecisionsPath     string        `mapstructure:"decisions_path"`
	DryRun            bool          `mapstructure:"dry_run"`
	Timezone          string        `mapstructure:"timezone"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type ScheduleConfig struct {
	At       string `mapstructure:"at"`
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type AlpacaCredentials struct {
	APIKey    string `envconfig:"APCA_API_KEY_ID"`
	APISecret string `envconfig:"APCA_API_SECRET_KEY"`
	BaseURL   string `envconfig:"APCA_API_BASE_URL" default:"https://paper-api.alpaca.markets"`
}

type EmailCredentials struct {
	User     string `envconfig:"EMAIL_USER"`
	Password string `envconfig:"EMAIL_PASS"`
	Host     string `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	Port     int    `envconfig:"SMTP_PORT" default:"465"`
}

var defaults = map[string]any{
	"strategy.symbol":          "SPY",
	"strategy.short_window":    50,
	"strategy.long_window":     200,
	"data.source":              string(SourceAlpaca),
	"data.csv_path":            "",
	"data.feed":                "iex",
	"data.max_fill":            3,
	"data.min_bars":            0,
	"data.lookback_days":       300,
	"backtest.start":           "2007-01-01",
	"backtest.end":             "2011-12-31",
	"backtest.initial_capital": 10000.0,
	"backtest.fee_pct":         0.001,
	"backtest.journal_path":    "backtest.sqlite",
	"backtest.ledger_csv":      "",
	"backtest.report_path":     "",
	"live.cash_buffer":         0.95,
	"live.max_daily_loss_pct":  -5.0,
	"live.stale_after_days":    5,
	"live.confirm_delay":       "5s",
	"live.confirm_attempts":    3,
	"live.confirm_backoff":     2.0,
	"live.decisions_path":      "decisions.ndjson",
	"live.dry_run":             false,
	"live.timezone":            "America/New_York",
	"live.requests_per_minute": 180,
	"schedule.at":              "23:15",
	"schedule.timezone":        "Europe/Athens",
	"log.level":                "info",
	"log.file":                 "logs/trading.log",
}

// FlagKeys maps command-line flag names to the configuration keys they set.
var FlagKeys = map[string]string{
	"symbol":    "strategy.symbol",
	"short":     "strategy.short_window",
	"long":      "strategy.long_window",
	"source":    "data.source",
	"csv":       "data.csv_path",
	"start":     "backtest.start",
	"end":       "backtest.end",
	"capital":   "backtest.initial_capital",
	"fee":       "backtest.fee_pct",
	"journal":   "backtest.journal_path",
	"ledger":    "backtest.ledger_csv",
	"report":    "backtest.report_path",
	"dry-run":   "live.dry_run",
	"at":        "schedule.at",
	"log-level": "log.level",
}

// Load merges defaults, the optional YAML file at path, MACROSS_* environment
// variables and any flags the user set, in increasing precedence. A .env file
// in the working directory is loaded first when present.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	_ = loadDotEnv(".env")

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config %s: %v", errs.ErrConfiguration, path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %v", errs.ErrConfiguration, err)
	}
	if err := envconfig.Process("", &cfg.Alpaca); err != nil {
		return Config{}, fmt.Errorf("%w: alpaca credentials: %v", errs.ErrConfiguration, err)
	}
	if err := envconfig.Process("", &cfg.Email); err != nil {
		return Config{}, fmt.Errorf("%w: email credentials: %v", errs.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnv sets variables from path without overriding ones already set.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

func (c Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(c.Strategy.Symbol != "", "strategy.symbol is required")
	check(c.Strategy.ShortWindow >= 1, "strategy.short_window (%d) must be positive", c.Strategy.ShortWindow)
	check(c.Strategy.ShortWindow < c.Strategy.LongWindow,
		"strategy.short_window (%d) must be less than strategy.long_window (%d)", c.Strategy.ShortWindow, c.Strategy.LongWindow)

	switch c.Data.Source {
	case SourceAlpaca, SourceYahoo:
	case SourceCSV:
		check(c.Data.CSVPath != "", "data.csv_path is required for the csv source")
	default:
		check(false, "data.source %q must be alpaca, yahoo or csv", c.Data.Source)
	}
	check(c.Data.MaxFill >= 0, "data.max_fill must be >= 0")
	check(c.Data.MinBars >= 0, "data.min_bars must be >= 0")
	check(c.Data.LookbackDays > 0, "data.lookback_days must be > 0")

	if start, end, err := c.Backtest.Range(); err != nil {
		problems = append(problems, err)
	} else {
		check(start.Before(end), "backtest.start must be before backtest.end")
	}
	check(c.Backtest.InitialCapital > 0, "backtest.initial_capital must be > 0")
	check(c.Backtest.FeePct >= 0 && c.Backtest.FeePct < 1, "backtest.fee_pct must be in [0, 1)")

	check(c.Live.CashBuffer > 0 && c.Live.CashBuffer < 1, "live.cash_buffer must be in (0, 1)")
	check(c.Live.MaxDailyLossPct < 0, "live.max_daily_loss_pct must be negative")
	check(c.Live.StaleAfterDays > 0, "live.stale_after_days must be > 0")
	check(c.Live.ConfirmAttempts >= 1, "live.confirm_attempts must be >= 1")
	check(c.Live.ConfirmBackoff >= 1, "live.confirm_backoff must be >= 1")
	check(c.Live.ConfirmDelay >= 0, "live.confirm_delay must be >= 0")
	check(c.Live.RequestsPerMinute > 0, "live.requests_per_minute must be > 0")
	if _, err := time.LoadLocation(c.Live.Timezone); err != nil {
		check(false, "live.timezone %q: %v", c.Live.Timezone, err)
	}

	if _, err := time.Parse("15:04", c.Schedule.At); err != nil {
		check(false, "schedule.at %q must be HH:MM", c.Schedule.At)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		check(false, "schedule.timezone %q: %v", c.Schedule.Timezone, err)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", errs.ErrConfiguration, errors.Join(problems...))
}

// RequireAlpaca fails unless both API credentials are set. Live trading and
// the alpaca data source need them.
func (c Config) RequireAlpaca() error {
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return fmt.Errorf("%w: APCA_API_KEY_ID and APCA_API_SECRET_KEY are required", errs.ErrConfiguration)
	}
	return nil
}

// Range parses the backtest window. The end date is inclusive.
func (b BacktestConfig) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.start %q: %w", b.Start, err)
	}
	end, err := time.Parse(time.DateOnly, b.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtest.end %q: %w", b.End, err)
	}
	return start, end.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// MinBars is the shortest history the data handler accepts.
func (c Config) MinBars() int {
	if c.Data.MinBars > 0 {
		return c.Data.MinBars
	}
	return c.Strategy.LongWindow
}

func (c Config) Lookback() time.Duration {
	return time.Duration(c.Data.LookbackDays) * 24 * time.Hour
}

func (c Config) LiveLocation() *time.Location {
	return mustLocation(c.Live.Timezone)
}

func (c Config) ScheduleLocation() *time.Location {
	return mustLocation(c.Schedule.Timezone)
}

// mustLocation is only called on validated configs; UTC is the fallback.
func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
