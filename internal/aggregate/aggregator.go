package aggregate

import (
	"sort"
	"sync"

	"asnlog/internal/domain"
)

const sampleCap = 3

type key struct {
	asn         uint32
	description string
}

type bucket struct {
	ips     map[string]struct{}
	total   uint64
	samples []string
}

// Aggregator accumulates per-(ASN, description) statistics from resolved
// addresses. IPs that could not be attributed to an ASN are counted
// separately and never folded into a bucket. Safe for concurrent use.
type Aggregator struct {
	mu              sync.Mutex
	buckets         map[key]*bucket
	unresolved      int
	unresolvedLines uint64
}

func New() *Aggregator {
	return &Aggregator{buckets: make(map[key]*bucket)}
}

// Record accounts one unique IP and the number of log lines it appeared on.
func (a *Aggregator) Record(ip string, lines uint64, res domain.Resolution) {
	if !res.Attributed {
		a.RecordUnresolved(ip, lines)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	k := key{asn: res.Range.ASN, description: res.Range.Description}
	b := a.buckets[k]
	if b == nil {
		b = &bucket{ips: make(map[string]struct{})}
		a.buckets[k] = b
	}

	if _, seen := b.ips[ip]; !seen {
		b.ips[ip] = struct{}{}
		if len(b.samples) < sampleCap {
			b.samples = append(b.samples, ip)
		}
	}
	b.total += lines
}

// RecordUnresolved accounts an IP with no ASN attribution, whether because
// the authority knows no announcement for it or because its lookup failed.
func (a *Aggregator) RecordUnresolved(_ string, lines uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unresolved++
	a.unresolvedLines += lines
}

// Unresolved returns how many unique IPs carry no attribution.
func (a *Aggregator) Unresolved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unresolved
}

// UnresolvedLines returns how many matched log lines those IPs accounted for.
func (a *Aggregator) UnresolvedLines() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unresolvedLines
}

// Snapshot returns the aggregate entries ordered by unique-IP count
// descending, ties broken by ASN ascending. The ordering is deterministic
// for a fixed set of recorded resolutions.
func (a *Aggregator) Snapshot() []domain.AggregateEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]domain.AggregateEntry, 0, len(a.buckets))
	for k, b := range a.buckets {
		ips := make([]string, 0, len(b.ips))
		for ip := range b.ips {
			ips = append(ips, ip)
		}
		sort.Strings(ips)

		samples := make([]string, len(b.samples))
		copy(samples, b.samples)

		entries = append(entries, domain.AggregateEntry{
			ASN:           k.asn,
			Description:   k.description,
			UniqueIPCount: len(b.ips),
			TotalEntries:  b.total,
			SampleIPs:     samples,
			IPs:           ips,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UniqueIPCount != entries[j].UniqueIPCount {
			return entries[i].UniqueIPCount > entries[j].UniqueIPCount
		}
		if entries[i].ASN != entries[j].ASN {
			return entries[i].ASN < entries[j].ASN
		}
		return entries[i].Description < entries[j].Description
	})
	return entries
}
