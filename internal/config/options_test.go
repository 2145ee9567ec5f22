package config

import (
	"testing"
	"time"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := ParseArgs([]string{"auth.log", "Failed password"})
	if err != nil {
		t.Fatalf("ParseArgs returned error: %v", err)
	}

	if opts.LogFile != "auth.log" || opts.Pattern != "Failed password" {
		t.Fatalf("positional args parsed as (%q, %q)", opts.LogFile, opts.Pattern)
	}
	if opts.Separator != " " {
		t.Fatalf("Separator = %q, want a single space", opts.Separator)
	}
	if opts.Column != 7 {
		t.Fatalf("Column = %d, want 7", opts.Column)
	}
	if opts.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", opts.Workers)
	}
	if opts.Timeout != 15*time.Second {
		t.Fatalf("Timeout = %v, want 15s", opts.Timeout)
	}
	if opts.SortBy != "ip-count" {
		t.Fatalf("SortBy = %q, want ip-count", opts.SortBy)
	}
}

func TestParseArgsFlags(t *testing.T) {
	opts, err := ParseArgs([]string{
		"-separator", "|",
		"-column", "2",
		"-lstrip", "ip=",
		"-rstrip", ",",
		"-cache", "ranges.json",
		"-json", "report.json",
		"-sort-by", "total-entries",
		"-workers", "4",
		"-timeout", "5s",
		"-prefetch",
		"-stats",
		"-debug",
		"fw.log", "deny",
	})
	if err != nil {
		t.Fatalf("ParseArgs returned error: %v", err)
	}

	if opts.Separator != "|" || opts.Column != 2 || opts.LStrip != "ip=" || opts.RStrip != "," {
		t.Fatalf("extraction flags parsed as %+v", opts)
	}
	if opts.CachePath != "ranges.json" || opts.JSONPath != "report.json" {
		t.Fatalf("paths parsed as cache=%q json=%q", opts.CachePath, opts.JSONPath)
	}
	if opts.SortBy != "total-entries" || opts.Workers != 4 || opts.Timeout != 5*time.Second {
		t.Fatalf("run flags parsed as %+v", opts)
	}
	if !opts.Prefetch || !opts.Stats || !opts.Debug {
		t.Fatalf("boolean flags parsed as %+v", opts)
	}
}

func TestParseArgsEnvFallbacks(t *testing.T) {
	t.Setenv("ASNLOG_CACHE", "/var/cache/ranges.json")
	t.Setenv("ASNLOG_WORKERS", "3")
	t.Setenv("ASNLOG_REDIS_URL", "redis://localhost:6379/0")

	opts, err := ParseArgs([]string{"auth.log", "Failed"})
	if err != nil {
		t.Fatalf("ParseArgs returned error: %v", err)
	}
	if opts.CachePath != "/var/cache/ranges.json" {
		t.Fatalf("CachePath = %q, want env fallback", opts.CachePath)
	}
	if opts.Workers != 3 {
		t.Fatalf("Workers = %d, want env fallback 3", opts.Workers)
	}
	if opts.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("RedisURL = %q, want env value", opts.RedisURL)
	}
}

func TestParseArgsFlagBeatsEnv(t *testing.T) {
	t.Setenv("ASNLOG_WORKERS", "3")
	opts, err := ParseArgs([]string{"-workers", "12", "auth.log", "Failed"})
	if err != nil {
		t.Fatalf("ParseArgs returned error: %v", err)
	}
	if opts.Workers != 12 {
		t.Fatalf("Workers = %d, want flag value 12", opts.Workers)
	}
}

func TestParseArgsValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cases := []struct {
		name string
		args []string
	}{
		{"missing positionals", []string{"auth.log"}},
		{"negative column", []string{"-column", "-1", "auth.log", "Failed"}},
		{"empty separator", []string{"-separator", "", "auth.log", "Failed"}},
		{"archive without dsn", []string{"-archive", "auth.log", "Failed"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseArgs(tc.args); err == nil {
				t.Fatalf("ParseArgs(%v) accepted invalid input", tc.args)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ASNLOG_TEST_INT", "42")
	if got := GetEnvInt("ASNLOG_TEST_INT", 7); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}
	t.Setenv("ASNLOG_TEST_INT", "not-a-number")
	if got := GetEnvInt("ASNLOG_TEST_INT", 7); got != 7 {
		t.Fatalf("GetEnvInt returned %d, want fallback 7", got)
	}
	if got := GetEnvInt("ASNLOG_TEST_INT_MISSING", 7); got != 7 {
		t.Fatalf("GetEnvInt returned %d, want fallback 7", got)
	}
}
