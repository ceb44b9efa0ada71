package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type MDSource string

const (
	SourceBinance MDSource = "binance"
	SourceAlpaca  MDSource = "alpaca"
)

// EnvPrefix prefixes the environment override for every flag: --unit-size is BOT_UNIT_SIZE.
const EnvPrefix = "BOT_"

type Config struct {
	Pair      string
	Account   string
	SignerURL string
	VenueURL  string

	MDSource    MDSource
	MDSymbol    string
	MDURL       string
	StreamURL   string
	KlineStream bool

	Strategy string
	Fast     int
	Slow     int
	Signal   int

	UnitSize      float64
	Dust          float64
	ManualOffset  float64
	PriceDecimals int
	QtyDecimals   int

	MaxPendingNew int
	MaxPending    int
	MaxOrderQty   float64
	KillSwitch    bool

	StaleAfter    time.Duration
	PollInterval  time.Duration
	SignalSettle  time.Duration
	HTTPTimeout   time.Duration
	BookDepth     int
	History       time.Duration
	RefreshWindow time.Duration
	CommandQueue  int
	Console       bool

	DecisionsPath string
	JournalDSN    string
	ProfileAddr   string
	LogLevel      string

	AlpacaKey    string
	AlpacaSecret string
}

func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}
	return LoadArgs(os.Args[1:])
}

// LoadArgs resolves configuration with precedence defaults < --config file < env < flags
// given on the command line.
func LoadArgs(args []string) (Config, error) {
	var cfg Config
	var source string
	var configPath string

	fs := flag.NewFlagSet("trendbot", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "path to a JSON config file keyed by flag name")
	fs.StringVar(&cfg.Pair, "pair", "ETH/USDT", "venue asset pair")
	fs.StringVar(&cfg.Account, "account", "", "venue account name")
	fs.StringVar(&cfg.SignerURL, "signer-url", "http://127.0.0.1:8090/api/signer", "signing service base URL")
	fs.StringVar(&cfg.VenueURL, "venue-url", "http://127.0.0.1:8091/api/v1/", "venue REST base URL")
	fs.StringVar(&source, "md-source", string(SourceBinance), "market data source: binance or alpaca")
	fs.StringVar(&cfg.MDSymbol, "md-symbol", "", "market data symbol (derived from pair when empty)")
	fs.StringVar(&cfg.MDURL, "md-url", "", "market data REST base URL override")
	fs.StringVar(&cfg.StreamURL, "stream-url", "", "kline websocket base URL override")
	fs.BoolVar(&cfg.KlineStream, "kline-stream", false, "stream bars over websocket instead of polling")
	fs.StringVar(&cfg.Strategy, "strategy", "macd", "signal strategy: macd or sma")
	fs.IntVar(&cfg.Fast, "fast", 12, "fast EMA/SMA period")
	fs.IntVar(&cfg.Slow, "slow", 26, "slow EMA/SMA period")
	fs.IntVar(&cfg.Signal, "signal", 9, "MACD signal period")
	fs.Float64Var(&cfg.UnitSize, "unit-size", 0.5, "target exposure per signal unit")
	fs.Float64Var(&cfg.Dust, "dust", 0.1, "smallest quantity worth trading")
	fs.Float64Var(&cfg.ManualOffset, "manual-offset", 0.2, "price offset through the touch for manual orders")
	fs.IntVar(&cfg.PriceDecimals, "price-decimals", 2, "price rounding")
	fs.IntVar(&cfg.QtyDecimals, "qty-decimals", 2, "quantity rounding")
	fs.IntVar(&cfg.MaxPendingNew, "max-pending-new", 1, "max orders pending new or pending cancel")
	fs.IntVar(&cfg.MaxPending, "max-pending", 3, "max orders pending or working")
	fs.Float64Var(&cfg.MaxOrderQty, "max-order-qty", 0, "max quantity per order (0 disables)")
	fs.BoolVar(&cfg.KillSwitch, "kill-switch", false, "if true, never place orders")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", 40*time.Second, "cancel working orders older than this")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 3*time.Second, "control loop interval")
	fs.DurationVar(&cfg.SignalSettle, "signal-settle", 3*time.Second, "delay after a minute rolls before checking the signal")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", 10*time.Second, "timeout for every outbound request")
	fs.IntVar(&cfg.BookDepth, "book-depth", 10, "order book levels to fetch")
	fs.DurationVar(&cfg.History, "history", 1000*time.Minute, "bar history fetched at startup")
	fs.DurationVar(&cfg.RefreshWindow, "refresh-window", 2*time.Minute, "bar window fetched every iteration")
	fs.IntVar(&cfg.CommandQueue, "command-queue", 16, "command queue capacity")
	fs.BoolVar(&cfg.Console, "console", true, "read operator commands from stdin")
	fs.StringVar(&cfg.DecisionsPath, "decisions-path", "decisions.ndjson", "path to decisions log")
	fs.StringVar(&cfg.JournalDSN, "journal-dsn", "", "postgres DSN for the decision journal (empty disables)")
	fs.StringVar(&cfg.ProfileAddr, "profile-addr", "", "pyroscope server address (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if configPath != "" {
		if err := applyFile(fs, configPath); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(fs); err != nil {
		return cfg, err
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return cfg, fmt.Errorf("flag --%s: %w", name, err)
		}
	}

	cfg.MDSource = MDSource(source)
	if cfg.MDSymbol == "" {
		cfg.MDSymbol = defaultSymbol(cfg.MDSource, cfg.Pair)
	}
	if v := os.Getenv("VENUE_ACCOUNT"); v != "" && cfg.Account == "" {
		cfg.Account = v
	}
	cfg.AlpacaKey = os.Getenv("APCA_API_KEY_ID")
	cfg.AlpacaSecret = os.Getenv("APCA_API_SECRET_KEY")

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFile sets flags from a flat JSON object keyed by flag name.
func applyFile(fs *flag.FlagSet, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var values map[string]any
	if err := (sonic.Config{UseNumber: true}).Froze().Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "config" || fs.Lookup(k) == nil {
			return fmt.Errorf("config %s: unknown key %q", path, k)
		}
		if err := fs.Set(k, fmt.Sprint(values[k])); err != nil {
			return fmt.Errorf("config %s: key %q: %w", path, k, err)
		}
	}
	return nil
}

func applyEnv(fs *flag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if f.Name == "config" {
			return
		}
		key := EnvPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Errorf("env %s: %w", key, err))
		}
	})
	return errors.Join(errs...)
}

func defaultSymbol(source MDSource, pair string) string {
	if source == SourceBinance {
		return strings.ReplaceAll(pair, "/", "")
	}
	return pair
}

func validate(cfg Config) error {
	if cfg.Account == "" {
		return fmt.Errorf("account is required (--account, BOT_ACCOUNT or VENUE_ACCOUNT)")
	}
	if !strings.Contains(cfg.Pair, "/") {
		return fmt.Errorf("pair must look like BASE/QUOTE, got %q", cfg.Pair)
	}
	if cfg.MDSource != SourceBinance && cfg.MDSource != SourceAlpaca {
		return fmt.Errorf("invalid md-source: %s", cfg.MDSource)
	}
	if cfg.KlineStream && cfg.MDSource != SourceBinance {
		return fmt.Errorf("kline-stream requires md-source binance")
	}
	if cfg.Strategy != "macd" && cfg.Strategy != "sma" {
		return fmt.Errorf("invalid strategy: %s", cfg.Strategy)
	}
	if cfg.Fast <= 0 || cfg.Signal <= 0 {
		return fmt.Errorf("fast and signal must be > 0")
	}
	if cfg.Slow <= cfg.Fast {
		return fmt.Errorf("slow must be > fast")
	}
	if cfg.UnitSize <= 0 {
		return fmt.Errorf("unit-size must be > 0")
	}
	if cfg.Dust < 0 || cfg.ManualOffset < 0 || cfg.MaxOrderQty < 0 {
		return fmt.Errorf("dust, manual-offset and max-order-qty must be >= 0")
	}
	if cfg.PriceDecimals < 0 || cfg.PriceDecimals > 8 || cfg.QtyDecimals < 0 || cfg.QtyDecimals > 8 {
		return fmt.Errorf("price-decimals and qty-decimals must be within 0..8")
	}
	if cfg.MaxPendingNew < 0 {
		return fmt.Errorf("max-pending-new must be >= 0")
	}
	if cfg.MaxPending < cfg.MaxPendingNew {
		return fmt.Errorf("max-pending must be >= max-pending-new")
	}
	if cfg.PollInterval <= 0 || cfg.StaleAfter <= 0 || cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("poll-interval, stale-after and http-timeout must be > 0")
	}
	if cfg.SignalSettle < 0 || cfg.SignalSettle >= time.Minute {
		return fmt.Errorf("signal-settle must be within [0, 1m)")
	}
	if cfg.History < cfg.RefreshWindow || cfg.RefreshWindow <= 0 {
		return fmt.Errorf("history must be >= refresh-window > 0")
	}
	if cfg.BookDepth <= 0 || cfg.CommandQueue <= 0 {
		return fmt.Errorf("book-depth and command-queue must be > 0")
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	return nil
}

func loadDotEnvIfPresent(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return loadDotEnv(path)
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
