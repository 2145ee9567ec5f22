package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Options carries everything the analysis run needs. Flags win over
// environment variables, which win over defaults; the .env file is loaded
// before parsing.
type Options struct {
	LogFile string
	Pattern string

	Separator string
	Column    int
	LStrip    string
	RStrip    string

	CachePath string
	RedisURL  string

	JSONPath string
	SortBy   string

	Workers  int
	Timeout  time.Duration
	MMDBPath string
	Prefetch bool

	Archive     bool
	DatabaseDSN string

	Stats bool
	Debug bool
}

// ParseArgs builds Options from command-line arguments. The two positional
// arguments are the log file and the line-matching regex.
func ParseArgs(args []string) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("asnlog", flag.ContinueOnError)
	fs.StringVar(&opts.Separator, "separator", " ", `field separator; " " means any whitespace run`)
	fs.IntVar(&opts.Column, "column", 7, "0-based field index holding the IP address")
	fs.StringVar(&opts.LStrip, "lstrip", "", "text stripped from the left of the column value")
	fs.StringVar(&opts.RStrip, "rstrip", "", "text stripped from the right of the column value")
	fs.StringVar(&opts.CachePath, "cache", GetEnv("ASNLOG_CACHE", ""), "persistent range cache file")
	fs.StringVar(&opts.JSONPath, "json", "", "write the JSON report here instead of printing a table")
	fs.StringVar(&opts.SortBy, "sort-by", "ip-count", `report ordering: "ip-count" or "total-entries"`)
	fs.IntVar(&opts.Workers, "workers", GetEnvInt("ASNLOG_WORKERS", 8), "concurrent authority lookups")
	fs.DurationVar(&opts.Timeout, "timeout", 15*time.Second, "per-query timeout")
	fs.StringVar(&opts.MMDBPath, "mmdb", GetEnv("ASNLOG_MMDB", ""), "resolve offline from this GeoLite2-ASN database")
	fs.BoolVar(&opts.Prefetch, "prefetch", false, "prefetch all announced prefixes of newly seen ASNs")
	fs.BoolVar(&opts.Archive, "archive", false, "archive the run to Postgres (DATABASE_URL)")
	fs.BoolVar(&opts.Stats, "stats", false, "log phase throughput statistics")
	fs.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: asnlog [flags] <logfile> <regex>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	rest := fs.Args()
	if len(rest) != 2 {
		fs.Usage()
		return Options{}, fmt.Errorf("expected <logfile> and <regex> arguments, got %d", len(rest))
	}
	opts.LogFile = rest[0]
	opts.Pattern = rest[1]

	opts.RedisURL = GetEnv("ASNLOG_REDIS_URL", "")
	opts.DatabaseDSN = GetEnv("DATABASE_URL", "")

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Column < 0 {
		return Options{}, fmt.Errorf("column must not be negative, got %d", opts.Column)
	}
	if opts.Separator == "" {
		return Options{}, fmt.Errorf("separator must not be empty")
	}
	if opts.Archive && opts.DatabaseDSN == "" {
		return Options{}, fmt.Errorf("-archive requires DATABASE_URL to be set")
	}

	return opts, nil
}

func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
