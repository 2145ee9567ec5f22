// Package prefixlist post-processes announced-prefix listings for the
// asnprefixes tool: family split, optional CIDR summarization, file output.
package prefixlist

import (
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strings"

	"go4.org/netipx"
)

// Categorize splits prefixes by address family, dropping anything that does
// not parse. Both lists come back sorted.
func Categorize(prefixes []string) (v4, v6 []string) {
	for _, raw := range prefixes {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		prefix = prefix.Masked()
		if prefix.Addr().Is4() {
			v4 = append(v4, prefix.String())
		} else {
			v6 = append(v6, prefix.String())
		}
	}
	sort.Strings(v4)
	sort.Strings(v6)
	return v4, v6
}

// Summarize collapses contiguous and overlapping prefixes into the minimal
// covering set, preserving family separation.
func Summarize(prefixes []string) ([]string, error) {
	var builder netipx.IPSetBuilder
	for _, raw := range prefixes {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		builder.AddPrefix(prefix.Masked())
	}

	set, err := builder.IPSet()
	if err != nil {
		return nil, fmt.Errorf("summarize prefixes: %w", err)
	}

	collapsed := set.Prefixes()
	out := make([]string, 0, len(collapsed))
	for _, prefix := range collapsed {
		out = append(out, prefix.String())
	}
	return out, nil
}

// WriteFile writes one prefix per line, overwriting any existing file.
func WriteFile(path string, prefixes []string) error {
	content := strings.Join(prefixes, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write prefix list: %w", err)
	}
	return nil
}
