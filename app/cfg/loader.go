package cfg

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Sources and output
	FeedsFile    string `long:"feeds-file" env:"FEEDS_FILE" description:"JSON or YAML file mapping categories to feed URLs (falls back to FEEDS)"`
	FeedsJSON    string `long:"feeds" env:"FEEDS" description:"Inline JSON document mapping categories to feed URLs"`
	Output       string `long:"output" env:"OUTPUT" default:"./public/index.html" description:"Path of the rendered artifact ('-' for stdout)"`
	TemplatePath string `long:"template" env:"TEMPLATE" description:"HTML template overriding the built-in one"`
	Format       string `long:"format" env:"FORMAT" default:"html" choice:"html" choice:"rss" description:"Output format"`

	// Aggregation
	Concurrency  int    `long:"concurrency" env:"CONCURRENCY" default:"0" description:"Maximum sources fetched at once (0 = unbounded)"`
	WaveDelay    int    `long:"wave-delay" env:"WAVE_DELAY" default:"850" description:"Delay in milliseconds before each subsequent wave of fetches"`
	Timeout      int    `long:"timeout" env:"TIMEOUT" default:"30" description:"Per-source request timeout in seconds"`
	SortPolicy   string `long:"sort" env:"SORT" default:"timestamp" choice:"timestamp" choice:"title" choice:"none" description:"Ordering applied to the aggregated items"`
	DateFallback string `long:"date-fallback" env:"DATE_FALLBACK" default:"keep" choice:"keep" choice:"now" description:"Timestamp used when an item carries no date"`
	RecentWindow int    `long:"recent-window" env:"RECENT_WINDOW" default:"8" description:"Hours an item counts as recent"`

	// Preview server
	Serve             bool   `long:"serve" env:"SERVE" description:"Serve the digest over HTTP instead of writing it once"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://feeds.example.com)"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"1800" description:"Rebuild interval in seconds when serving"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed Digest/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validate(&raw); err != nil {
		return nil, err
	}

	cfg := &Cfg{
		FeedsFile:         raw.FeedsFile,
		FeedsJSON:         raw.FeedsJSON,
		Output:            raw.Output,
		TemplatePath:      raw.TemplatePath,
		Format:            raw.Format,
		Concurrency:       raw.Concurrency,
		WaveDelay:         time.Duration(raw.WaveDelay) * time.Millisecond,
		Timeout:           time.Duration(raw.Timeout) * time.Second,
		SortPolicy:        raw.SortPolicy,
		DateFallback:      raw.DateFallback,
		RecentWindow:      time.Duration(raw.RecentWindow) * time.Hour,
		Serve:             raw.Serve,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func validate(raw *rawCfg) error {
	if raw.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}
	if raw.WaveDelay < 0 {
		return fmt.Errorf("wave delay must be non-negative")
	}
	if raw.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if raw.RecentWindow < 0 {
		return fmt.Errorf("recent window must be non-negative")
	}
	if raw.Serve && raw.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler interval must be positive when serving")
	}
	if !slices.Contains([]string{"html", "rss"}, raw.Format) {
		return fmt.Errorf("unsupported output format: %s", raw.Format)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			slog.Debug("Timezone configured", "timezone", timezone)
		}
	}
	return nil
}
