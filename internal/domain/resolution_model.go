package domain

// Resolution is the outcome of resolving one IP address. Attributed is false
// when the address has no discoverable ASN (private space, unannounced
// prefixes); that is a legitimate result, not an error.
type Resolution struct {
	IP         string
	Attributed bool
	FromCache  bool
	Range      NetworkRange
}

// AggregateEntry is one row of the final report, keyed by (ASN, description).
type AggregateEntry struct {
	ASN           uint32   `json:"asn"`
	Description   string   `json:"description"`
	UniqueIPCount int      `json:"unique_ip_count"`
	TotalEntries  uint64   `json:"total_entries"`
	SampleIPs     []string `json:"sample_ips"`
	IPs           []string `json:"ips,omitempty"`
}
