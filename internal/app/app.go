// Package app wires the asnlog pipeline together: extract candidate IPs,
// resolve them against the range cache and the authority, aggregate, report.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"asnlog/internal/aggregate"
	"asnlog/internal/archive"
	"asnlog/internal/authority"
	"asnlog/internal/config"
	"asnlog/internal/extract"
	"asnlog/internal/rangecache"
	"asnlog/internal/rangestore"
	"asnlog/internal/report"
	"asnlog/internal/resolver"
	"asnlog/internal/stats"
)

const (
	lineStatsInterval   = 100000
	lookupStatsInterval = 100
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using system environment variables")
	}

	opts, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	pattern, err := regexp.Compile(opts.Pattern)
	if err != nil {
		return fmt.Errorf("invalid line pattern: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now().UTC()

	// The cache lifecycle brackets the whole run: open once here, close once
	// in the deferred call below so ranges resolved before an interrupt are
	// still persisted.
	backend, backendCleanup, err := buildCacheBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer backendCleanup()

	store := rangestore.New()
	if backend != nil {
		store, err = rangecache.Open(ctx, backend)
		if err != nil {
			return err
		}
	}
	defer func() {
		if backend == nil {
			return
		}
		// The run context may already be cancelled; the close write gets its own.
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rangecache.Close(closeCtx, backend, store); err != nil {
			log.Error("Failed to persist range cache", "error", err)
		}
	}()

	var lineTracker, lookupTracker *stats.Tracker
	if opts.Stats {
		lineTracker = stats.NewTracker("Line processing", "lines", lineStatsInterval)
		lookupTracker = stats.NewTracker("IP lookup", "lookups", lookupStatsInterval)
	}

	log.Info("Phase 1: collecting IP addresses", "file", opts.LogFile)
	extracted, err := extract.File(opts.LogFile, extract.Options{
		Pattern:   pattern,
		Separator: opts.Separator,
		Column:    opts.Column,
		LStrip:    opts.LStrip,
		RStrip:    opts.RStrip,
	}, lineTracker)
	if err != nil {
		return err
	}
	lineTracker.Finish(extracted.TotalLines)
	log.Info("Collected IP addresses",
		"unique_ips", len(extracted.Counts),
		"matched_lines", extracted.MatchedLines,
		"total_lines", extracted.TotalLines,
		"invalid_values", extracted.InvalidValues,
	)

	auth, authCleanup, err := buildAuthority(opts)
	if err != nil {
		return err
	}
	defer authCleanup()

	res := resolver.New(store, auth,
		resolver.WithWorkers(opts.Workers),
		resolver.WithPrefetch(opts.Prefetch),
	)
	agg := aggregate.New()

	log.Info("Phase 2: resolving ASNs", "workers", opts.Workers)
	failed, runErr := res.ResolveAll(ctx, extracted.Counts, agg, lookupTracker)
	lookupTracker.Finish(uint64(len(extracted.Counts)))
	if runErr != nil {
		log.Warn("Resolution interrupted, reporting partial results", "error", runErr)
	}

	entries := report.Sorted(agg.Snapshot(), opts.SortBy)
	unresolved := agg.Unresolved()

	if opts.JSONPath != "" {
		if err := report.WriteJSON(opts.JSONPath, entries, unresolved); err != nil {
			return err
		}
		log.Info("Wrote JSON report", "path", opts.JSONPath)
	} else {
		if err := report.WriteTable(os.Stdout, entries, unresolved); err != nil {
			return err
		}
	}

	log.Info("Run complete",
		"asns", len(entries),
		"unique_ips", len(extracted.Counts),
		"unresolved_ips", unresolved,
		"failed_lookups", failed,
		"cached_ranges", store.Len(),
	)

	if opts.Archive {
		run := archive.BuildRun(archive.RunSummary{
			Source:       opts.LogFile,
			Pattern:      opts.Pattern,
			StartedAt:    startedAt,
			FinishedAt:   time.Now().UTC(),
			TotalLines:   extracted.TotalLines,
			MatchedLines: extracted.MatchedLines,
			UniqueIPs:    len(extracted.Counts),
			Unresolved:   unresolved,
		}, entries)
		if err := archive.Save(ctx, opts.DatabaseDSN, run); err != nil {
			log.Error("Failed to archive run", "error", err)
		} else {
			log.Info("Archived run", "entries", len(run.Entries))
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 && failed == len(extracted.Counts) {
		return fmt.Errorf("all %d lookups failed", failed)
	}
	return nil
}

func buildCacheBackend(ctx context.Context, opts config.Options) (rangecache.Backend, func(), error) {
	noop := func() {}

	if opts.RedisURL != "" {
		backend, err := rangecache.NewRedisBackend(ctx, opts.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return backend, func() {
			if err := backend.Close(); err != nil {
				log.Warn("Error closing redis client", "error", err)
			}
		}, nil
	}

	if opts.CachePath != "" {
		return rangecache.NewFileBackend(opts.CachePath), noop, nil
	}
	return nil, noop, nil
}

func buildAuthority(opts config.Options) (resolver.Authority, func(), error) {
	noop := func() {}

	if opts.MMDBPath != "" {
		client, err := authority.OpenMMDB(opts.MMDBPath)
		if err != nil {
			return nil, noop, err
		}
		log.Debug("Resolving offline", "mmdb", opts.MMDBPath)
		return client, func() {
			if err := client.Close(); err != nil {
				log.Warn("Error closing asn database", "error", err)
			}
		}, nil
	}

	return authority.NewClient(opts.Timeout), noop, nil
}
