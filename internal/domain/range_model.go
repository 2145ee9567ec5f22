package domain

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// ErrCacheCorrupt reports that a persisted range cache could not be decoded.
// It is fatal at startup: silently continuing with an empty store would hide
// the loss of accumulated lookups from the operator.
var ErrCacheCorrupt = errors.New("range cache corrupt")

// NetworkRange maps one announced CIDR prefix to its BGP origin.
type NetworkRange struct {
	Prefix      string `json:"prefix"`
	ASN         uint32 `json:"asn"`
	Description string `json:"description"`
}

// NormalizePrefix parses a CIDR string and returns its canonical masked form,
// e.g. "193.0.10.1/21" becomes "193.0.8.0/21".
func NormalizePrefix(cidr string) (string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid prefix %q: %w", cidr, err)
	}
	return ipNet.String(), nil
}

// Network returns the parsed form of the range's prefix.
func (r NetworkRange) Network() (*net.IPNet, error) {
	_, ipNet, err := net.ParseCIDR(r.Prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid prefix %q: %w", r.Prefix, err)
	}
	return ipNet, nil
}

// Contains reports whether the range covers the address. Addresses of a
// different family never match.
func (r NetworkRange) Contains(addr netip.Addr) bool {
	prefix, err := netip.ParsePrefix(r.Prefix)
	if err != nil {
		return false
	}
	if prefix.Addr().Is4() != addr.Is4() {
		return false
	}
	return prefix.Contains(addr)
}
