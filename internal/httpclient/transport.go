// Package httpclient implements component 4.A: an authenticated HTTP
// transport shared by the Colab API client and the Drive client adapter. It
// injects a bearer token from an AccessTokenSource, surfaces non-2xx
// responses as a typed HttpError, and optionally validates response bodies
// against a caller-supplied schema function.
package httpclient

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/logging"
)

// AccessTokenSource supplies a bearer token for outbound requests. It is an
// external collaborator per spec.md §6: the core never performs OAuth
// itself, it only calls Get. See internal/auth/google for the default
// implementation shipped with this repository.
type AccessTokenSource interface {
	Get(ctx context.Context, forceRefresh bool) (string, error)
}

// HttpError represents a non-2xx upstream response. BodyText is empty when
// the upstream sent no body.
type HttpError struct {
	StatusCode int
	StatusText string
	BodyText   string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("httpclient: %d %s: %s", e.StatusCode, e.StatusText, truncate(e.BodyText, 300))
}

// SchemaError indicates a response parsed as valid JSON but failed the
// caller's schema validation function.
type SchemaError struct {
	Reason  string
	Payload string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("httpclient: schema validation failed: %s (payload=%s)", e.Reason, truncate(e.Payload, 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Transport is the authenticated HTTP client used by component B (Colab API
// client) and component M (Drive client adapter). It performs no retries of
// its own — retry policy for transient upstream failures belongs to the
// caller (see internal/colabapi/retry.go), per spec.md §7.
type Transport struct {
	client     *req.Client
	tokens     AccessTokenSource
	service    string
	requestLog bool
}

// New builds a Transport scoped to one logical upstream service (used for
// per-service proxy enablement and log tagging). It impersonates a Chrome
// TLS/HTTP fingerprint the same way the donor's provider clients do —
// Google's own web surfaces are sensitive to naive Go TLS fingerprints —
// and carries a cookie jar scoped by public suffix, since Colab's session
// state is partly cookie-based.
func New(cfg *config.Config, service string, tokens AccessTokenSource) (*Transport, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to build cookie jar: %w", err)
	}

	client := req.C().
		ImpersonateChrome().
		EnableAutoDecompress().
		SetTimeout(cfg.HTTPTimeout()).
		SetCommonRetryCount(0).
		SetCookieJar(jar)

	if cfg.ProxyEnabledFor(service) {
		client.SetProxyURL(cfg.ProxyURL)
	}

	return &Transport{client: client, tokens: tokens, service: service, requestLog: cfg.RequestLog}, nil
}

// Options describes one request. Schema, when non-nil, is run against the
// raw response body before the caller's JSON unmarshal; a validation
// failure is surfaced as *SchemaError rather than a decode panic downstream.
type Options struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Schema  func([]byte) error
}

// Do executes one request and returns the raw response body. A successful
// 204 response or DELETE returns a nil body with no error; a non-2xx
// response is an *HttpError for every method.
func (t *Transport) Do(ctx context.Context, opts Options) ([]byte, error) {
	token, err := t.tokens.Get(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to obtain access token: %w", err)
	}

	r := t.client.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+token)
	for k, v := range opts.Headers {
		r.SetHeader(k, v)
	}
	if opts.Body != nil {
		r.SetBodyBytes(opts.Body)
	}

	start := time.Now()
	resp, err := r.Send(opts.Method, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("httpclient: request failed: %w", err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	fields := log.Fields{
		"component": "httpclient",
		"service":   t.service,
		"method":    opts.Method,
		"url":       opts.URL,
		"status":    resp.StatusCode,
		"elapsed":   time.Since(start).String(),
	}
	if t.requestLog || logging.SnippetCaptureEnabled() {
		if opts.Body != nil {
			fields["request_snippet"] = truncate(string(opts.Body), 300)
		}
		fields["response_snippet"] = truncate(string(resp.Bytes()), 300)
	}
	log.WithFields(fields).Debug("request complete")

	data := resp.Bytes()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HttpError{StatusCode: resp.StatusCode, StatusText: resp.Status, BodyText: string(data)}
	}

	if resp.StatusCode == 204 || opts.Method == "DELETE" {
		return nil, nil
	}

	if opts.Schema != nil {
		if verr := opts.Schema(data); verr != nil {
			return nil, &SchemaError{Reason: verr.Error(), Payload: string(data)}
		}
	}

	return data, nil
}
