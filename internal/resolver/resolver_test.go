package resolver

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"asnlog/internal/aggregate"
	"asnlog/internal/authority"
	"asnlog/internal/domain"
	"asnlog/internal/rangestore"
)

type fakeAuthority struct {
	mu       sync.Mutex
	calls    int
	ranges   map[string]domain.NetworkRange
	err      error
	delay    time.Duration
	prefixes map[uint32][]string
}

func (f *fakeAuthority) Resolve(_ context.Context, addr netip.Addr) (domain.NetworkRange, bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return domain.NetworkRange{}, false, f.err
	}

	for _, rng := range f.ranges {
		if rng.Contains(addr) {
			return rng, true, nil
		}
	}
	return domain.NetworkRange{}, false, nil
}

func (f *fakeAuthority) AnnouncedPrefixes(_ context.Context, asn uint32) ([]string, error) {
	return f.prefixes[asn], nil
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func exampleAuthority() *fakeAuthority {
	return &fakeAuthority{ranges: map[string]domain.NetworkRange{
		"203.0.113.0/24":  {Prefix: "203.0.113.0/24", ASN: 64500, Description: "example-net"},
		"198.51.100.0/24": {Prefix: "198.51.100.0/24", ASN: 64501, Description: "example-isp"},
	}}
}

func TestResolveSecondHitCostsNoQuery(t *testing.T) {
	auth := exampleAuthority()
	res := New(rangestore.New(), auth)

	first, err := res.Resolve(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("first Resolve returned error: %v", err)
	}
	if !first.Attributed || first.Range.ASN != 64500 {
		t.Fatalf("first Resolve returned %+v, want ASN 64500", first)
	}
	if first.FromCache {
		t.Fatal("first Resolve claims a cache hit")
	}

	second, err := res.Resolve(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second Resolve of the same IP was not a cache hit")
	}
	if got := auth.callCount(); got != 1 {
		t.Fatalf("authority was queried %d times, want 1", got)
	}
}

func TestResolveSiblingIPsShareOneQuery(t *testing.T) {
	auth := exampleAuthority()
	res := New(rangestore.New(), auth)

	if _, err := res.Resolve(context.Background(), "198.51.100.1"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	second, err := res.Resolve(context.Background(), "198.51.100.2")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !second.FromCache || second.Range.ASN != 64501 {
		t.Fatalf("sibling IP resolution was %+v, want cache hit on ASN 64501", second)
	}
	if got := auth.callCount(); got != 1 {
		t.Fatalf("authority was queried %d times for one /24, want 1", got)
	}
}

func TestResolveNotFoundIsNotCached(t *testing.T) {
	auth := &fakeAuthority{}
	store := rangestore.New()
	res := New(store, auth)

	for i := 0; i < 2; i++ {
		got, err := res.Resolve(context.Background(), "192.0.2.55")
		if err != nil {
			t.Fatalf("Resolve #%d returned error: %v", i+1, err)
		}
		if got.Attributed {
			t.Fatalf("Resolve #%d attributed an unannounced IP: %+v", i+1, got)
		}
	}

	if got := auth.callCount(); got != 2 {
		t.Fatalf("authority was queried %d times, want 2 (negative results must not be cached)", got)
	}
	if store.Len() != 0 {
		t.Fatalf("store holds %d ranges after NotFound outcomes, want 0", store.Len())
	}
}

func TestResolveLookupErrorLeavesStoreUntouched(t *testing.T) {
	lookupErr := &authority.LookupError{Resource: "203.0.113.7", Err: errors.New("connection refused")}
	auth := &fakeAuthority{err: lookupErr}
	store := rangestore.New()
	res := New(store, auth)

	_, err := res.Resolve(context.Background(), "203.0.113.7")
	var got *authority.LookupError
	if !errors.As(err, &got) {
		t.Fatalf("Resolve returned %v, want the propagated *LookupError", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store holds %d ranges after a failed lookup, want 0", store.Len())
	}
}

func TestResolveScreensReservedSpace(t *testing.T) {
	auth := exampleAuthority()
	res := New(rangestore.New(), auth)

	for _, ip := range []string{
		"10.1.2.3", "172.16.0.1", "192.168.1.1", "127.0.0.1",
		"169.254.1.1", "224.0.0.1", "255.255.255.255", "100.64.0.1",
		"::1", "fe80::1", "ff02::1", "fc00::1",
	} {
		got, err := res.Resolve(context.Background(), ip)
		if err != nil {
			t.Fatalf("Resolve(%s) returned error: %v", ip, err)
		}
		if got.Attributed {
			t.Fatalf("Resolve(%s) attributed reserved space: %+v", ip, got)
		}
	}
	if got := auth.callCount(); got != 0 {
		t.Fatalf("authority was queried %d times for reserved space, want 0", got)
	}
}

func TestConcurrentResolutionsOfSameIPCoalesce(t *testing.T) {
	auth := exampleAuthority()
	auth.delay = 20 * time.Millisecond
	res := New(rangestore.New(), auth)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := res.Resolve(context.Background(), "203.0.113.7")
			if err != nil || !got.Attributed {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d concurrent resolutions failed", failures.Load())
	}
	if got := auth.callCount(); got != 1 {
		t.Fatalf("authority was queried %d times by concurrent resolutions of one IP, want 1", got)
	}
}

func TestPrefetchCachesWholeASN(t *testing.T) {
	auth := exampleAuthority()
	auth.prefixes = map[uint32][]string{
		64500: {"203.0.113.0/24", "192.0.2.0/24"},
	}
	store := rangestore.New()
	res := New(store, auth, WithPrefetch(true))

	if _, err := res.Resolve(context.Background(), "203.0.113.7"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	// 192.0.2.9 was never seen, but its prefix came in with the prefetch.
	got, err := res.Resolve(context.Background(), "192.0.2.9")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !got.FromCache || got.Range.ASN != 64500 {
		t.Fatalf("prefetched prefix did not serve from cache: %+v", got)
	}
	if got := auth.callCount(); got != 1 {
		t.Fatalf("authority was queried %d times, want 1 with prefetch", got)
	}
}

func TestResolveAllContinuesPastLookupErrors(t *testing.T) {
	lookupErr := &authority.LookupError{Resource: "x", Err: errors.New("timeout")}
	auth := &fakeAuthority{err: lookupErr}
	agg := aggregate.New()
	res := New(rangestore.New(), auth, WithWorkers(4))

	counts := map[string]uint64{
		"203.0.113.7": 3,
		"203.0.113.8": 1,
	}
	failed, err := res.ResolveAll(context.Background(), counts, agg, nil)
	if err != nil {
		t.Fatalf("ResolveAll returned error: %v, want partial completion", err)
	}
	if failed != 2 {
		t.Fatalf("ResolveAll reported %d failures, want 2", failed)
	}
	if got := agg.Unresolved(); got != 2 {
		t.Fatalf("aggregator counted %d unresolved IPs, want 2", got)
	}
	if entries := agg.Snapshot(); len(entries) != 0 {
		t.Fatalf("snapshot has %d entries after total failure, want 0", len(entries))
	}
}

func TestResolveAllAggregates(t *testing.T) {
	auth := exampleAuthority()
	agg := aggregate.New()
	res := New(rangestore.New(), auth, WithWorkers(4))

	counts := map[string]uint64{
		"203.0.113.7":  3,
		"198.51.100.1": 2,
		"198.51.100.2": 1,
		"10.0.0.1":     5, // reserved, must land in unresolved
	}
	failed, err := res.ResolveAll(context.Background(), counts, agg, nil)
	if err != nil {
		t.Fatalf("ResolveAll returned error: %v", err)
	}
	if failed != 0 {
		t.Fatalf("ResolveAll reported %d failures, want 0", failed)
	}

	entries := agg.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(entries))
	}
	if entries[0].ASN != 64501 || entries[0].UniqueIPCount != 2 || entries[0].TotalEntries != 3 {
		t.Fatalf("top entry is %+v, want ASN 64501 with 2 IPs and 3 entries", entries[0])
	}
	if entries[1].ASN != 64500 || entries[1].UniqueIPCount != 1 || entries[1].TotalEntries != 3 {
		t.Fatalf("second entry is %+v, want ASN 64500 with 1 IP and 3 entries", entries[1])
	}
	if got := agg.Unresolved(); got != 1 {
		t.Fatalf("aggregator counted %d unresolved IPs, want 1", got)
	}
}
