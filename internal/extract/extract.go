package extract

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"asnlog/internal/stats"
)

// Options controls how candidate IPs are pulled out of matching log lines.
// A single-space Separator means "any run of whitespace", the common case
// for syslog-style files.
type Options struct {
	Pattern   *regexp.Regexp
	Separator string
	Column    int
	LStrip    string
	RStrip    string
}

// Result accumulates per-IP line counts plus scan bookkeeping.
type Result struct {
	Counts        map[string]uint64
	TotalLines    uint64
	MatchedLines  uint64
	InvalidValues uint64
}

// File scans one log file and returns the IP -> matching-line counts.
func File(path string, opts Options, tracker *stats.Tracker) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	return Reader(f, opts, tracker)
}

// Reader scans line-oriented input. Lines that do not match the pattern,
// have too few fields, or carry a non-IP value in the selected column are
// skipped; syntactically invalid values are counted so a mis-pointed column
// is visible instead of silently producing an empty report.
func Reader(r io.Reader, opts Options, tracker *stats.Tracker) (Result, error) {
	result := Result{Counts: make(map[string]uint64)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		result.TotalLines++
		tracker.Tick(result.TotalLines)

		line := strings.TrimSpace(scanner.Text())
		if !opts.Pattern.MatchString(line) {
			continue
		}
		result.MatchedLines++

		value, ok := columnValue(line, opts)
		if !ok {
			continue
		}
		if opts.LStrip != "" {
			value = strings.TrimPrefix(value, opts.LStrip)
		}
		if opts.RStrip != "" {
			value = strings.TrimSuffix(value, opts.RStrip)
		}
		value = strings.TrimSpace(value)

		addr, err := netip.ParseAddr(value)
		if err != nil || addr.Zone() != "" {
			result.InvalidValues++
			log.Debug("Column value is not an IP address", "value", value)
			continue
		}

		result.Counts[addr.Unmap().String()]++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan log file: %w", err)
	}
	return result, nil
}

func columnValue(line string, opts Options) (string, bool) {
	var fields []string
	if opts.Separator == " " {
		fields = strings.Fields(line)
	} else {
		fields = strings.Split(line, opts.Separator)
	}
	if opts.Column < 0 || opts.Column >= len(fields) {
		return "", false
	}
	return strings.TrimSpace(fields[opts.Column]), true
}
