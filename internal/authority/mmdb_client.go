package authority

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"asnlog/internal/domain"
)

// MMDBClient resolves addresses from a local GeoLite2-ASN database instead
// of the network. It satisfies the same contract as Client.Resolve, so runs
// against bulk logs can stay fully offline.
type MMDBClient struct {
	reader *maxminddb.Reader
}

func OpenMMDB(path string) (*MMDBClient, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asn database %s: %w", path, err)
	}
	return &MMDBClient{reader: reader}, nil
}

func (c *MMDBClient) Close() error {
	return c.reader.Close()
}

func (c *MMDBClient) Resolve(_ context.Context, addr netip.Addr) (domain.NetworkRange, bool, error) {
	var record struct {
		ASN          uint32 `maxminddb:"autonomous_system_number"`
		Organization string `maxminddb:"autonomous_system_organization"`
	}

	ip := net.IP(addr.Unmap().AsSlice())
	network, found, err := c.reader.LookupNetwork(ip, &record)
	if err != nil {
		return domain.NetworkRange{}, false, &LookupError{Resource: addr.String(), Err: err}
	}
	if !found || record.ASN == 0 || network == nil {
		return domain.NetworkRange{}, false, nil
	}

	return domain.NetworkRange{
		Prefix:      network.String(),
		ASN:         record.ASN,
		Description: strings.ToLower(strings.TrimSpace(record.Organization)),
	}, true, nil
}
