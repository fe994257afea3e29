package colabapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/httpclient"
)

// Unauthenticated signals a missing/invalid bearer token (spec.md §7). The
// caller (the Runtime manager façade) may force-refresh the token and retry
// the operation exactly once.
type Unauthenticated struct {
	Op string
}

func (e *Unauthenticated) Error() string {
	return fmt.Sprintf("colabapi: unauthenticated during %s", e.Op)
}

// Client wraps the Colab REST surface: the bearer-authenticated assignment/
// CCU/user-info endpoints, and the proxy-token-authenticated kernel/session
// endpoints reached once an Assignment's proxy has been resolved.
type Client struct {
	apiTransport  *httpclient.Transport
	gapiTransport *httpclient.Transport
	proxyHTTP     *req.Client
	apiBase       string
	gapiBase      string
}

// New builds a Client scoped to both Colab domains named in Config.
func New(cfg *config.Config, tokens httpclient.AccessTokenSource) (*Client, error) {
	apiT, err := httpclient.New(cfg, "colab-api", tokens)
	if err != nil {
		return nil, err
	}
	gapiT, err := httpclient.New(cfg, "colab-gapi", tokens)
	if err != nil {
		return nil, err
	}

	proxyHTTP := req.C().
		EnableAutoDecompress().
		SetTimeout(cfg.WebSocketConnectTimeout())

	return &Client{
		apiTransport:  apiT,
		gapiTransport: gapiT,
		proxyHTTP:     proxyHTTP,
		apiBase:       "https://" + cfg.ColabAPIDomain,
		gapiBase:      "https://" + cfg.ColabGapiDomain,
	}, nil
}

func wrapAuth(op string, err error) error {
	if httpErr, ok := err.(*httpclient.HttpError); ok && httpErr.StatusCode == 401 {
		return &Unauthenticated{Op: op}
	}
	return err
}

// GetCcuInfo fetches the caller's compute-credit-unit balance.
func (c *Client) GetCcuInfo(ctx context.Context) (CcuInfo, error) {
	data, err := c.apiTransport.Do(ctx, httpclient.Options{
		Method: "GET",
		URL:    c.apiBase + "/tun/m/ccu",
	})
	if err != nil {
		return CcuInfo{}, wrapAuth("GetCcuInfo", err)
	}
	return CcuInfo{
		BalanceSeconds: gjson.GetBytes(data, "balanceSeconds").Int(),
		PlanName:       gjson.GetBytes(data, "planName").String(),
	}, nil
}

// GetUserInfo fetches the authenticated user's profile.
func (c *Client) GetUserInfo(ctx context.Context) (UserInfo, error) {
	data, err := c.apiTransport.Do(ctx, httpclient.Options{
		Method: "GET",
		URL:    c.apiBase + "/tun/m/userinfo",
	})
	if err != nil {
		return UserInfo{}, wrapAuth("GetUserInfo", err)
	}
	return UserInfo{
		Email: gjson.GetBytes(data, "email").String(),
		Name:  gjson.GetBytes(data, "name").String(),
	}, nil
}

// ListAssignments returns all assignments currently reserved for the caller.
func (c *Client) ListAssignments(ctx context.Context) ([]Assignment, error) {
	data, err := withRetry(ctx, func() ([]byte, error) {
		return c.apiTransport.Do(ctx, httpclient.Options{
			Method: "GET",
			URL:    c.apiBase + "/tun/m/assignments",
		})
	})
	if err != nil {
		return nil, wrapAuth("ListAssignments", err)
	}

	var out []Assignment
	for _, item := range gjson.GetBytes(data, "assignments").Array() {
		out = append(out, parseAssignment(item))
	}
	return out, nil
}

// PostAssignment requests a new assignment for variant, optionally forcing
// replacement of any existing one. It returns the raw outcome; interpreting
// Outcome into a usable Assignment or a typed failure is the Assignment
// Negotiator's job (internal/assignment), per spec.md §4.D.
func (c *Client) PostAssignment(ctx context.Context, variant Variant, forceNew bool) (PostAssignmentResult, error) {
	body, _ := sjson.SetBytes(nil, "variant", string(variant))
	body, _ = sjson.SetBytes(body, "forceNew", forceNew)

	data, err := withRetry(ctx, func() ([]byte, error) {
		return c.apiTransport.Do(ctx, httpclient.Options{
			Method: "POST",
			URL:    c.apiBase + "/tun/m/assign",
			Body:   body,
		})
	})
	if err != nil {
		return PostAssignmentResult{}, wrapAuth("PostAssignment", err)
	}

	result := PostAssignmentResult{Outcome: NormalizeOutcome(gjson.GetBytes(data, "outcome").String())}
	if a := gjson.GetBytes(data, "assignment"); a.Exists() {
		result.Assignment = parseAssignment(a)
	}
	if p := gjson.GetBytes(data, "runtimeProxyInfo"); p.Exists() {
		result.HasRuntimeProxy = true
		result.RuntimeProxyInfo = parseProxyInfo(p)
	}
	return result, nil
}

// RefreshConnection obtains a fresh ProxyInfo for an already-assigned
// endpoint.
func (c *Client) RefreshConnection(ctx context.Context, endpoint string) (ProxyInfo, error) {
	data, err := withRetry(ctx, func() ([]byte, error) {
		return c.apiTransport.Do(ctx, httpclient.Options{
			Method: "POST",
			URL:    c.apiBase + "/tun/m/connect",
			Body:   mustJSON(map[string]string{"endpoint": endpoint}),
		})
	})
	if err != nil {
		return ProxyInfo{}, wrapAuth("RefreshConnection", err)
	}
	return parseProxyInfo(gjson.ParseBytes(data)), nil
}

func parseAssignment(v gjson.Result) Assignment {
	a := Assignment{
		Label:             v.Get("label").String(),
		Endpoint:          v.Get("endpoint").String(),
		Accelerator:       v.Get("accelerator").String(),
		Variant:           NormalizeVariant(v.Get("variant").String()),
		MachineShape:      NormalizeMachineShape(v.Get("machineShape").String()),
		SubscriptionState: v.Get("subscriptionState").String(),
	}
	if gapiTier := v.Get("subscriptionTier"); gapiTier.Type == gjson.String {
		a.SubscriptionTier = NormalizeSubscriptionTierGapi(gapiTier.String())
	} else if numTier := v.Get("subscriptionTier"); numTier.Exists() {
		a.SubscriptionTier = NormalizeSubscriptionTierNumeric(strconv.FormatInt(numTier.Int(), 10))
	}
	if idle := v.Get("idleTimeoutSec"); idle.Exists() {
		sec := int(idle.Int())
		a.IdleTimeoutSec = &sec
	}
	a.TotalMemoryMB = v.Get("totalMemoryMb").Int()
	a.UsedMemoryMB = v.Get("usedMemoryMb").Int()
	return a
}

func parseProxyInfo(v gjson.Result) ProxyInfo {
	return ProxyInfo{
		URL:        v.Get("url").String(),
		Token:      v.Get("token").String(),
		IssuedAt:   time.Now(),
		TTLSeconds: int(orDefaultInt(v.Get("ttlSeconds").Int(), 3600)),
	}
}

func orDefaultInt(v int64, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

func mustJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}

// ListKernels lists live kernels on proxy's backend via the proxy-token
// authenticated Jupyter REST surface (spec.md §6 — "token query parameter").
func (c *Client) ListKernels(ctx context.Context, proxy ProxyInfo) ([]KernelInfo, error) {
	data, err := c.proxyGet(ctx, proxy, "/api/kernels")
	if err != nil {
		return nil, err
	}
	var out []KernelInfo
	for _, item := range gjson.ParseBytes(data).Array() {
		out = append(out, KernelInfo{
			ID:           item.Get("id").String(),
			Name:         item.Get("name").String(),
			LastActivity: item.Get("last_activity").String(),
		})
	}
	return out, nil
}

// ListSessions lists live Jupyter sessions on proxy's backend.
func (c *Client) ListSessions(ctx context.Context, proxy ProxyInfo) ([]SessionInfo, error) {
	data, err := c.proxyGet(ctx, proxy, "/api/sessions")
	if err != nil {
		return nil, err
	}
	var out []SessionInfo
	for _, item := range gjson.ParseBytes(data).Array() {
		out = append(out, SessionInfo{
			ID:       item.Get("id").String(),
			Path:     item.Get("path").String(),
			KernelID: item.Get("kernel.id").String(),
		})
	}
	return out, nil
}

// CreateSession creates (or resolves) a Jupyter session bound to path,
// backed by a kernel named kernelName (typically "python3").
func (c *Client) CreateSession(ctx context.Context, proxy ProxyInfo, path, kernelName string) (SessionInfo, error) {
	body, _ := sjson.SetBytes(nil, "path", path)
	body, _ = sjson.SetBytes(body, "kernel.name", kernelName)
	body, _ = sjson.SetBytes(body, "type", "notebook")

	data, err := c.proxyPost(ctx, proxy, "/api/sessions", body)
	if err != nil {
		return SessionInfo{}, err
	}
	res := gjson.ParseBytes(data)
	return SessionInfo{
		ID:       res.Get("id").String(),
		Path:     res.Get("path").String(),
		KernelID: res.Get("kernel.id").String(),
	}, nil
}

// DeleteSession removes a Jupyter session.
func (c *Client) DeleteSession(ctx context.Context, proxy ProxyInfo, sessionID string) error {
	url := strings.TrimSuffix(proxy.URL, "/") + "/api/sessions/" + sessionID + "?token=" + proxy.Token
	resp, err := c.proxyHTTP.R().SetContext(ctx).Delete(url)
	if err != nil {
		return fmt.Errorf("colabapi: delete session failed: %w", err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp.StatusCode >= 300 && resp.StatusCode != 404 {
		return &httpclient.HttpError{StatusCode: resp.StatusCode, StatusText: resp.Status, BodyText: string(resp.Bytes())}
	}
	return nil
}

func (c *Client) proxyGet(ctx context.Context, proxy ProxyInfo, path string) ([]byte, error) {
	url := strings.TrimSuffix(proxy.URL, "/") + path + "?token=" + proxy.Token
	resp, err := c.proxyHTTP.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("colabapi: proxy GET %s failed: %w", path, err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp.StatusCode >= 300 {
		return nil, &httpclient.HttpError{StatusCode: resp.StatusCode, StatusText: resp.Status, BodyText: string(resp.Bytes())}
	}
	return resp.Bytes(), nil
}

func (c *Client) proxyPost(ctx context.Context, proxy ProxyInfo, path string, body []byte) ([]byte, error) {
	url := strings.TrimSuffix(proxy.URL, "/") + path + "?token=" + proxy.Token
	resp, err := c.proxyHTTP.R().SetContext(ctx).SetBodyBytes(body).Post(url)
	if err != nil {
		return nil, fmt.Errorf("colabapi: proxy POST %s failed: %w", path, err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp.StatusCode >= 300 {
		return nil, &httpclient.HttpError{StatusCode: resp.StatusCode, StatusText: resp.Status, BodyText: string(resp.Bytes())}
	}
	return resp.Bytes(), nil
}
