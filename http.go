package cfddns

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// NewHTTPClient returns the client shared by every outbound request.
//
// The transport does not keep connections alive, so each request is one clean exchange
// and concurrent cycles never contend over pooled connections.
// retries is the number of additional attempts after a failed request; zero means a single attempt.
func NewHTTPClient(retries int, logger logrus.FieldLogger) *retryablehttp.Client {
	return newHTTPClient(retries, logger, cleanhttp.DefaultTransport())
}

// NewIPv4HTTPClient is NewHTTPClient restricted to IPv4 connections.
// The trace endpoint reports the address the request arrived from,
// so dialing over IPv6 would yield an address that cannot be published in an A record.
func NewIPv4HTTPClient(retries int, logger logrus.FieldLogger) *retryablehttp.Client {
	t := cleanhttp.DefaultTransport()
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: -1}
	t.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp4", addr)
	}
	return newHTTPClient(retries, logger, t)
}

func newHTTPClient(retries int, logger logrus.FieldLogger, t *http.Transport) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Transport: t}
	c.RetryMax = retries
	c.RetryWaitMin = 1 * time.Second
	c.RetryWaitMax = 10 * time.Second
	// hand the final response back so callers can report the real status
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = nil
	if logger != nil {
		c.Logger = leveledLogger{logger.WithField("component", "http")}
	}
	return c
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
// Request chatter is demoted to debug.
type leveledLogger struct {
	logrus.FieldLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.with(kv).Error(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.with(kv).Warn(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.with(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.with(kv).Debug(msg) }

func (l leveledLogger) with(kv []interface{}) logrus.FieldLogger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return l.WithFields(fields)
}

// drain discards the rest of a response body.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	body.Close()
}
