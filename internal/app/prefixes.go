package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"asnlog/internal/authority"
	"asnlog/internal/prefixlist"
)

// RunPrefixes implements the asnprefixes tool: one fetch of the announced
// prefixes of a single ASN, no caching involved.
func RunPrefixes() error {
	fs := flag.NewFlagSet("asnprefixes", flag.ContinueOnError)
	prefixBase := fs.String("prefix", "", "write <base>-v4.txt and <base>-v6.txt instead of stdout")
	summarize := fs.Bool("summarize", false, "collapse contiguous prefixes")
	timeout := fs.Duration("timeout", 15*time.Second, "query timeout")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: asnprefixes [flags] <asn>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one ASN argument, got %d", fs.NArg())
	}

	rawASN := strings.TrimPrefix(strings.ToUpper(fs.Arg(0)), "AS")
	asn, err := strconv.ParseUint(rawASN, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid ASN %q: %w", fs.Arg(0), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := authority.NewClient(*timeout)
	log.Info("Fetching announced prefixes", "asn", asn)
	prefixes, err := client.AnnouncedPrefixes(ctx, uint32(asn))
	if err != nil {
		return err
	}
	if len(prefixes) == 0 {
		return fmt.Errorf("no prefixes announced by AS%d", asn)
	}

	if *summarize {
		prefixes, err = prefixlist.Summarize(prefixes)
		if err != nil {
			return err
		}
	}
	v4, v6 := prefixlist.Categorize(prefixes)

	if *prefixBase == "" {
		for _, prefix := range append(v4, v6...) {
			fmt.Println(prefix)
		}
		return nil
	}

	base := *prefixBase
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	v4Path := stem + "-v4.txt"
	v6Path := stem + "-v6.txt"

	if err := prefixlist.WriteFile(v4Path, v4); err != nil {
		return err
	}
	log.Info("Wrote prefixes", "path", v4Path, "count", len(v4))

	if err := prefixlist.WriteFile(v6Path, v6); err != nil {
		return err
	}
	log.Info("Wrote prefixes", "path", v6Path, "count", len(v6))
	return nil
}
