package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"asnlog/internal/domain"
)

// Sort keys accepted by the -sort-by flag. SortByIPCount matches the
// aggregator's native snapshot order.
const (
	SortByIPCount      = "ip-count"
	SortByTotalEntries = "total-entries"
)

// Document is the JSON report consumed by downstream tooling (for example
// the word-cloud generator). The unresolved count always travels with the
// entries so failed attributions cannot vanish from the output.
type Document struct {
	UnresolvedIPs int                     `json:"unresolved_ips"`
	Entries       []domain.AggregateEntry `json:"entries"`
}

// Sorted returns the entries in the requested order. Unknown modes fall back
// to the snapshot's native ip-count ordering.
func Sorted(entries []domain.AggregateEntry, sortBy string) []domain.AggregateEntry {
	if sortBy != SortByTotalEntries {
		return entries
	}

	out := make([]domain.AggregateEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalEntries != out[j].TotalEntries {
			return out[i].TotalEntries > out[j].TotalEntries
		}
		return out[i].ASN < out[j].ASN
	})
	return out
}

// WriteTable renders the aggregate as a bordered table followed by the
// unresolved count.
func WriteTable(w io.Writer, entries []domain.AggregateEntry, unresolved int) error {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(_, _ int) lipgloss.Style { return cellStyle }).
		Headers("BGP ASN", "BGP Description", "IP Count", "Total Entries", "Sample IPs")

	for _, entry := range entries {
		t.Row(
			"AS"+strconv.FormatUint(uint64(entry.ASN), 10),
			entry.Description,
			strconv.Itoa(entry.UniqueIPCount),
			strconv.FormatUint(entry.TotalEntries, 10),
			strings.Join(entry.SampleIPs, ", "),
		)
	}

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Unresolved IPs: %d\n", unresolved)
	return err
}

// WriteJSON writes the report document to path.
func WriteJSON(path string, entries []domain.AggregateEntry, unresolved int) error {
	doc := Document{UnresolvedIPs: unresolved, Entries: entries}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
