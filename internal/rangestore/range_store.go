package rangestore

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/yl2chen/cidranger"

	"asnlog/internal/domain"
)

const cacheDocumentVersion = 1

// Store is an in-memory index of known CIDR -> (ASN, description) mappings.
// Lookups may run concurrently; inserts take the write lock, so the store is
// safe to share between resolution workers.
type Store struct {
	mu       sync.RWMutex
	ranger   cidranger.Ranger
	byPrefix map[string]*storedRange
	seq      uint64
	dirty    bool
}

type storedRange struct {
	network net.IPNet
	rng     domain.NetworkRange
	seq     uint64
}

func (e *storedRange) Network() net.IPNet {
	return e.network
}

func New() *Store {
	return &Store{
		ranger:   cidranger.NewPCTrieRanger(),
		byPrefix: make(map[string]*storedRange),
	}
}

// Insert adds a range under its normalized prefix. Re-inserting an already
// known prefix is a no-op; a more or less specific prefix is a distinct
// entry, ranges are never merged.
func (s *Store) Insert(rng domain.NetworkRange) error {
	_, ipNet, err := net.ParseCIDR(rng.Prefix)
	if err != nil {
		return fmt.Errorf("insert range: invalid prefix %q: %w", rng.Prefix, err)
	}
	rng.Prefix = ipNet.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.byPrefix[rng.Prefix]; known {
		return nil
	}

	s.seq++
	entry := &storedRange{network: *ipNet, rng: rng, seq: s.seq}
	if err := s.ranger.Insert(entry); err != nil {
		return fmt.Errorf("insert range %s: %w", rng.Prefix, err)
	}
	s.byPrefix[rng.Prefix] = entry
	s.dirty = true
	return nil
}

// Lookup returns the cached range containing the address, if any. When
// several cached ranges overlap the address it prefers the most specific
// prefix, and the most recently inserted one on equal lengths.
func (s *Store) Lookup(addr netip.Addr) (domain.NetworkRange, bool) {
	ip := net.IP(addr.Unmap().AsSlice())

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.ranger.ContainingNetworks(ip)
	if err != nil || len(entries) == 0 {
		return domain.NetworkRange{}, false
	}

	var best *storedRange
	bestLen := -1
	for _, raw := range entries {
		entry, ok := raw.(*storedRange)
		if !ok {
			continue
		}
		ones, _ := entry.network.Mask.Size()
		if ones > bestLen || (ones == bestLen && entry.seq > best.seq) {
			best = entry
			bestLen = ones
		}
	}
	if best == nil {
		return domain.NetworkRange{}, false
	}
	return best.rng, true
}

// Len returns the number of cached ranges.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPrefix)
}

// Dirty reports whether any net-new range was inserted since the store was
// created or loaded.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Ranges returns a snapshot of all cached ranges in unspecified order.
func (s *Store) Ranges() []domain.NetworkRange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.NetworkRange, 0, len(s.byPrefix))
	for _, entry := range s.byPrefix {
		out = append(out, entry.rng)
	}
	return out
}

type cacheDocument struct {
	Version  int                   `json:"version"`
	Prefixes map[string]cacheEntry `json:"prefixes"`
}

type cacheEntry struct {
	ASN         uint32 `json:"asn"`
	Description string `json:"description"`
}

// Dump serializes the store's contents. Load(Dump()) reproduces an
// equivalent store; insertion order is not preserved and not significant.
func (s *Store) Dump() ([]byte, error) {
	s.mu.RLock()
	doc := cacheDocument{
		Version:  cacheDocumentVersion,
		Prefixes: make(map[string]cacheEntry, len(s.byPrefix)),
	}
	for prefix, entry := range s.byPrefix {
		doc.Prefixes[prefix] = cacheEntry{ASN: entry.rng.ASN, Description: entry.rng.Description}
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("dump range cache: %w", err)
	}
	return data, nil
}

// Load rebuilds a store from a serialized cache document. Malformed content
// fails with domain.ErrCacheCorrupt so the caller can decide between
// aborting and starting over; data is never silently discarded.
func Load(data []byte) (*Store, error) {
	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	if doc.Version != cacheDocumentVersion {
		return nil, fmt.Errorf("%w: unsupported document version %d", domain.ErrCacheCorrupt, doc.Version)
	}

	store := New()
	for prefix, entry := range doc.Prefixes {
		rng := domain.NetworkRange{Prefix: prefix, ASN: entry.ASN, Description: entry.Description}
		if err := store.Insert(rng); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
		}
	}
	store.mu.Lock()
	store.dirty = false
	store.mu.Unlock()
	return store, nil
}
