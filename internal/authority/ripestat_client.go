package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"asnlog/internal/domain"
)

const (
	defaultBaseURL = "https://stat.ripe.net"
	sourceApp      = "asnlog"
	userAgent      = "asnlog/1.0"
)

// Default routes show up in announcements of some transit operators and say
// nothing about who owns an address.
var excludedPrefixes = map[string]bool{
	"0.0.0.0/0": true,
	"::/0":      true,
}

// Client queries the RIPEstat data API. It is stateless apart from the
// underlying HTTP client and safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(baseURL string, timeout time.Duration) *Client {
	client := NewClient(timeout)
	client.baseURL = strings.TrimRight(baseURL, "/")
	return client
}

type prefixOverviewResponse struct {
	Status string `json:"status"`
	Data   struct {
		Announced bool   `json:"announced"`
		Resource  string `json:"resource"`
		ASNs      []struct {
			ASN    uint32 `json:"asn"`
			Holder string `json:"holder"`
		} `json:"asns"`
	} `json:"data"`
}

// Resolve issues one prefix-overview query for the address. The second
// return value is false when the authority knows no announcing ASN or no
// usable covering prefix for it; that is a NotFound outcome, not an error.
// Transport and payload failures come back as *LookupError.
func (c *Client) Resolve(ctx context.Context, addr netip.Addr) (domain.NetworkRange, bool, error) {
	ip := addr.Unmap().String()

	var payload prefixOverviewResponse
	if err := c.getJSON(ctx, "/data/prefix-overview/data.json", ip, &payload); err != nil {
		return domain.NetworkRange{}, false, err
	}
	if payload.Status != "ok" {
		return domain.NetworkRange{}, false, &LookupError{
			Resource: ip,
			Err:      fmt.Errorf("authority reported status %q", payload.Status),
		}
	}

	if !payload.Data.Announced || len(payload.Data.ASNs) == 0 {
		return domain.NetworkRange{}, false, nil
	}
	if excludedPrefixes[payload.Data.Resource] {
		return domain.NetworkRange{}, false, nil
	}
	prefix, err := domain.NormalizePrefix(payload.Data.Resource)
	if err != nil {
		return domain.NetworkRange{}, false, nil
	}

	origin := payload.Data.ASNs[0]
	if origin.ASN == 0 {
		return domain.NetworkRange{}, false, nil
	}

	return domain.NetworkRange{
		Prefix:      prefix,
		ASN:         origin.ASN,
		Description: normalizeHolder(origin.Holder),
	}, true, nil
}

type announcedPrefixesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Prefixes []struct {
			Prefix string `json:"prefix"`
		} `json:"prefixes"`
	} `json:"data"`
}

// AnnouncedPrefixes returns all prefixes currently announced by the ASN,
// normalized, with default routes and malformed entries dropped.
func (c *Client) AnnouncedPrefixes(ctx context.Context, asn uint32) ([]string, error) {
	resource := fmt.Sprintf("AS%d", asn)

	var payload announcedPrefixesResponse
	if err := c.getJSON(ctx, "/data/announced-prefixes/data.json", resource, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, &LookupError{
			Resource: resource,
			Err:      fmt.Errorf("authority reported status %q", payload.Status),
		}
	}

	prefixes := make([]string, 0, len(payload.Data.Prefixes))
	for _, entry := range payload.Data.Prefixes {
		raw := strings.TrimSpace(entry.Prefix)
		if raw == "" || excludedPrefixes[raw] {
			continue
		}
		prefix, err := domain.NormalizePrefix(raw)
		if err != nil {
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func (c *Client) getJSON(ctx context.Context, path, resource string, out any) error {
	query := url.Values{}
	query.Set("resource", resource)
	query.Set("sourceapp", sourceApp)
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &LookupError{Resource: resource, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &LookupError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &LookupError{
			Resource: resource,
			Err:      fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &LookupError{Resource: resource, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// normalizeHolder reduces a holder string like "EXAMPLE-NET - Example Corp, US"
// to its leading segment, lowercased, matching how descriptions are keyed in
// the aggregate report.
func normalizeHolder(holder string) string {
	if idx := strings.IndexByte(holder, ','); idx >= 0 {
		holder = holder[:idx]
	}
	return strings.ToLower(strings.TrimSpace(holder))
}
