package cfddns

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultTraceURL echoes connection metadata, including the caller's address, as key=value lines.
const DefaultTraceURL = "https://cloudflare.com/cdn-cgi/trace"

// TraceResolver constructs a resolver that asks a trace endpoint for this host's public address.
//
// The endpoint must respond "200 OK" with a text body of key=value lines, one of which is ip=<address>.
// The address must be IPv4.
// Each lookup is a single request with "Connection: close"; no connection is reused between lookups.
//
// A nil client uses NewIPv4HTTPClient with no retries.
// A zero timeout means 15 seconds.
func TraceResolver(serviceURL string, client *retryablehttp.Client, timeout time.Duration) (Resolver, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing trace URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("trace URL %q must be http or https", serviceURL)
	}
	if client == nil {
		client = NewIPv4HTTPClient(0, nil)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &traceResolver{serviceURL: u, httpClient: client, timeout: timeout}, nil
}

type traceResolver struct {
	httpClient *retryablehttp.Client
	serviceURL *url.URL
	timeout    time.Duration
}

// Resolve implements Resolver.
func (tr *traceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, tr.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, tr.serviceURL.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Close = true
	req.Host = tr.serviceURL.Host
	req.Header.Set("Connection", "close")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := tr.httpClient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("trace request failed: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("trace request returned %s", resp.Status)
	}

	ipstring, err := ParseTrace(resp.Body)
	if err != nil {
		return netip.Addr{}, err
	}
	ip, err := netip.ParseAddr(ipstring)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from trace response: %w", err)
	}
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("trace endpoint reported %s, which is not an IPv4 address", ip)
	}
	return ip, nil
}

// ParseTrace returns the value of the first "ip=" line of a trace body.
// A body without such a line is an ErrNoIPInTrace error.
func ParseTrace(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "ip="); ok && v != "" {
			return v, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading trace response: %w", err)
	}
	return "", ErrNoIPInTrace
}
