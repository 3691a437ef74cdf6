package cfddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultAPIURL is the base of the Cloudflare v4 API.
const DefaultAPIURL = "https://api.cloudflare.com/client/v4"

const listPageSize = 100

// CloudflareOptions tune NewCloudflare. The zero value is usable.
type CloudflareOptions struct {
	// BaseURL defaults to DefaultAPIURL.
	BaseURL string
	// HTTPClient defaults to NewHTTPClient with no retries.
	HTTPClient *retryablehttp.Client
	Logger     logrus.FieldLogger
	// Timeout bounds each request. Defaults to 15 seconds.
	Timeout time.Duration
	// RateLimit is the sustained number of update requests per second. Zero or less is unlimited.
	RateLimit float64
	// TTL is sent with every update. 1 means automatic; 0 leaves it out.
	TTL     int
	Proxied bool
}

// Cloudflare implements Provider for one Cloudflare zone.
//
// It should be constructed using NewCloudflare.
type Cloudflare struct {
	api        *cloudflare.API
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
	baseURL    string
	token      string
	zone       string
	timeout    time.Duration
	ttl        int
	proxied    bool
}

// NewCloudflare returns a provider that authenticates with the API token and manages records in zone.
func NewCloudflare(token, zone string, opts CloudflareOptions) (*Cloudflare, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: TOKEN", ErrMissingKey)
	}
	if zone == "" {
		return nil, fmt.Errorf("%w: ZONE", ErrMissingKey)
	}
	cf := &Cloudflare{
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		token:      token,
		zone:       zone,
		timeout:    opts.Timeout,
		ttl:        opts.TTL,
		proxied:    opts.Proxied,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	if cf.baseURL == "" {
		cf.baseURL = DefaultAPIURL
	}
	if _, err := url.Parse(cf.baseURL); err != nil {
		return nil, fmt.Errorf("error parsing API URL: %w", err)
	}
	if cf.logger == nil {
		cf.logger = discard
	}
	cf.logger = cf.logger.WithField("component", "cloudflare")
	if cf.httpClient == nil {
		cf.httpClient = NewHTTPClient(0, nil)
	}
	if cf.timeout <= 0 {
		cf.timeout = 15 * time.Second
	}
	if opts.RateLimit > 0 {
		cf.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	var err error
	cf.api, err = cloudflare.NewWithAPIToken(token,
		cloudflare.BaseURL(cf.baseURL),
		cloudflare.HTTPClient(cf.httpClient.StandardClient()),
		cloudflare.UsingLogger(printfLogger{cf.logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	return cf, nil
}

// VerifyToken checks that the API token is valid and active.
func (cf *Cloudflare) VerifyToken(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()
	cf.logger.Debug("verifying token...")
	result, err := cf.api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("%w: expected status \"active\"; got \"%s\"", ErrTokenInactive, result.Status)
	}
	cf.logger.Debug("token verified successfully")
	return nil
}

// ListRecords returns every DNS record in the zone, following pagination.
// A response that does not report success is an ErrListingRejected error.
func (cf *Cloudflare) ListRecords(ctx context.Context) ([]Record, error) {
	var records []Record
	for page := 1; ; page++ {
		list, err := cf.listPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, r := range list.Result {
			records = append(records, Record{ID: r.ID, Name: r.Name, Type: r.Type, Content: r.Content})
		}
		if page >= list.ResultInfo.TotalPages {
			break
		}
	}
	cf.logger.Debugf("found %d records in zone %s", len(records), cf.zone)
	return records, nil
}

func (cf *Cloudflare) listPage(ctx context.Context, page int) (*cloudflare.DNSListResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/zones/%s/dns_records/?page=%d&per_page=%d", cf.baseURL, url.PathEscape(cf.zone), page, listPageSize)
	req, err := cf.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cf.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error listing DNS records for zone %s: %w", cf.zone, err)
	}
	defer drain(resp.Body)

	var list cloudflare.DNSListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("%w: %s", ErrListingRejected, resp.Status)
		}
		return nil, fmt.Errorf("error decoding DNS record listing: %w", err)
	}
	if !list.Success || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %s%s", ErrListingRejected, resp.Status, responseMessages(list.Errors))
	}
	return &list, nil
}

// recordUpdate is the body of a record overwrite.
type recordUpdate struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl,omitempty"`
	Proxied bool   `json:"proxied,omitempty"`
}

// UpdateRecord overwrites the record in b with an A record pointing at addr.
func (cf *Cloudflare) UpdateRecord(ctx context.Context, b Binding, addr netip.Addr) error {
	if err := cf.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpdateFailed, b.Domain, err)
	}
	ctx, cancel := context.WithTimeout(ctx, cf.timeout)
	defer cancel()

	body, err := json.Marshal(recordUpdate{
		Type:    "A",
		Name:    b.Domain,
		Content: addr.String(),
		TTL:     cf.ttl,
		Proxied: cf.proxied,
	})
	if err != nil {
		return fmt.Errorf("error encoding update for %s: %w", b.Domain, err)
	}

	endpoint := fmt.Sprintf("%s/zones/%s/dns_records/%s", cf.baseURL, url.PathEscape(cf.zone), url.PathEscape(b.RecordID))
	req, err := cf.newRequest(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	cf.logger.Debugf("setting %s (%s) to %s...", b.Domain, b.RecordID, addr)
	resp, err := cf.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpdateFailed, b.Domain, err)
	}
	defer drain(resp.Body)

	var result cloudflare.DNSRecordResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %s (%s): %s%s", ErrUpdateFailed, b.Domain, b.RecordID, resp.Status, responseMessages(result.Errors))
	}
	if decodeErr == nil && !result.Success {
		return fmt.Errorf("%w: %s (%s): cloudflare reported failure%s", ErrUpdateFailed, b.Domain, b.RecordID, responseMessages(result.Errors))
	}
	if decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		cf.logger.WithError(decodeErr).Debugf("unreadable update response for %s", b.Domain)
	}
	return nil
}

func (cf *Cloudflare) newRequest(ctx context.Context, method, endpoint string, body []byte) (*retryablehttp.Request, error) {
	var raw interface{}
	if body != nil {
		raw = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, raw)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Close = true
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Connection", "close")
	return req, nil
}

func responseMessages(infos []cloudflare.ResponseInfo) string {
	if len(infos) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(infos))
	for _, i := range infos {
		msgs = append(msgs, fmt.Sprintf("%d %s", i.Code, i.Message))
	}
	return " (" + strings.Join(msgs, "; ") + ")"
}

// printfLogger routes the cloudflare SDK's Printf logging to debug.
type printfLogger struct {
	logrus.FieldLogger
}

func (l printfLogger) Printf(format string, v ...interface{}) { l.Debugf(format, v...) }
