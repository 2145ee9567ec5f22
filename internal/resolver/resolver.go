package resolver

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"asnlog/internal/aggregate"
	"asnlog/internal/domain"
	"asnlog/internal/rangestore"
	"asnlog/internal/stats"
)

// Authority answers "which network and ASN owns this address". The second
// return value is false when the address has no discoverable ASN; errors are
// transient lookup failures the resolver surfaces without retrying.
type Authority interface {
	Resolve(ctx context.Context, addr netip.Addr) (domain.NetworkRange, bool, error)
}

// PrefixLister is optionally implemented by authorities that can enumerate
// every prefix an ASN announces.
type PrefixLister interface {
	AnnouncedPrefixes(ctx context.Context, asn uint32) ([]string, error)
}

// Resolver answers IP -> ASN questions from the store first and from the
// authority only on a miss, caching what the authority returns. Concurrent
// resolutions of the same IP coalesce into a single in-flight query; two
// distinct IPs missing on the same not-yet-cached range may each issue one
// query, a bounded duplicate the store's idempotent insert absorbs.
type Resolver struct {
	store     *rangestore.Store
	authority Authority
	workers   int
	prefetch  bool

	flight singleflight.Group

	mu       sync.Mutex
	seenASNs map[uint32]struct{}
}

type Option func(*Resolver)

// WithWorkers bounds the number of in-flight authority queries during
// ResolveAll. Unbounded fan-out against the authority is never acceptable.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithPrefetch pulls the full announced-prefix list of each newly seen ASN
// into the store, so every later address of that operator is a cache hit.
func WithPrefetch(enabled bool) Option {
	return func(r *Resolver) {
		r.prefetch = enabled
	}
}

func New(store *rangestore.Store, authority Authority, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		authority: authority,
		workers:   8,
		seenASNs:  make(map[uint32]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the owning ASN of one address. A store hit costs no
// network call. NotFound outcomes are returned unattributed and never
// cached. Lookup failures propagate without touching the store.
func (r *Resolver) Resolve(ctx context.Context, ip string) (domain.Resolution, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		log.Debug("Skipping unparseable address", "ip", ip)
		return domain.Resolution{IP: ip}, nil
	}
	addr = addr.Unmap()

	if !isLookupWorthy(addr) {
		log.Debug("Address is in reserved space, skipping lookup", "ip", ip)
		return domain.Resolution{IP: ip}, nil
	}

	if rng, ok := r.store.Lookup(addr); ok {
		return domain.Resolution{IP: ip, Attributed: true, FromCache: true, Range: rng}, nil
	}

	value, err, _ := r.flight.Do(addr.String(), func() (any, error) {
		// Another resolution of this IP may have completed while this one
		// waited on the flight group.
		if rng, ok := r.store.Lookup(addr); ok {
			return domain.Resolution{IP: ip, Attributed: true, FromCache: true, Range: rng}, nil
		}

		rng, found, err := r.authority.Resolve(ctx, addr)
		if err != nil {
			return nil, err
		}
		if !found {
			return domain.Resolution{IP: ip}, nil
		}

		if err := r.store.Insert(rng); err != nil {
			return nil, err
		}
		r.maybePrefetch(ctx, rng)

		return domain.Resolution{IP: ip, Attributed: true, Range: rng}, nil
	})
	if err != nil {
		return domain.Resolution{IP: ip}, err
	}

	res := value.(domain.Resolution)
	res.IP = ip
	return res, nil
}

// ResolveAll resolves every IP in counts with a bounded worker pool and
// records the outcomes into agg. Lookup failures do not abort the run: the
// affected IPs are counted as unresolved and the failure count is returned
// so the caller can report partial results honestly. The run stops early
// only when ctx is cancelled.
func (r *Resolver) ResolveAll(ctx context.Context, counts map[string]uint64, agg *aggregate.Aggregator, tracker *stats.Tracker) (int, error) {
	ips := make([]string, 0, len(counts))
	for ip := range counts {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	var failed, done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, ip := range ips {
		ip := ip
		lines := counts[ip]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := r.Resolve(gctx, ip)
			if err != nil {
				log.Warn("Lookup failed, continuing without attribution", "ip", ip, "error", err)
				agg.RecordUnresolved(ip, lines)
				failed.Add(1)
			} else {
				agg.Record(ip, lines, res)
			}

			tracker.Tick(uint64(done.Add(1)))
			return nil
		})
	}

	err := g.Wait()
	return int(failed.Load()), err
}

func (r *Resolver) maybePrefetch(ctx context.Context, rng domain.NetworkRange) {
	if !r.prefetch {
		return
	}
	lister, ok := r.authority.(PrefixLister)
	if !ok {
		return
	}

	r.mu.Lock()
	if _, seen := r.seenASNs[rng.ASN]; seen {
		r.mu.Unlock()
		return
	}
	r.seenASNs[rng.ASN] = struct{}{}
	r.mu.Unlock()

	prefixes, err := lister.AnnouncedPrefixes(ctx, rng.ASN)
	if err != nil {
		log.Warn("Prefix prefetch failed", "asn", rng.ASN, "error", err)
		return
	}
	for _, prefix := range prefixes {
		candidate := domain.NetworkRange{Prefix: prefix, ASN: rng.ASN, Description: rng.Description}
		if err := r.store.Insert(candidate); err != nil {
			log.Debug("Skipping prefetched prefix", "prefix", prefix, "error", err)
		}
	}
	log.Debug("Prefetched announced prefixes", "asn", rng.ASN, "prefixes", len(prefixes))
}

var cgnatRange = netip.MustParsePrefix("100.64.0.0/10")

// isLookupWorthy screens out address space that can never carry a public BGP
// announcement, so no authority query is wasted on it.
func isLookupWorthy(addr netip.Addr) bool {
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsMulticast():
		return false
	}
	if addr.Is4() {
		if addr == netip.MustParseAddr("255.255.255.255") {
			return false
		}
		if cgnatRange.Contains(addr) {
			return false
		}
	}
	return true
}
