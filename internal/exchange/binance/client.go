package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"option-taker/internal/config"
	"option-taker/internal/core"
)

type AuthType int

const (
	AuthNone AuthType = iota
	AuthAPIKey
	AuthSigned
)

const apiKeyHeader = "X-MBX-APIKEY"

// Client issues signed REST calls against the three endpoint families that
// share the HMAC signing scheme: spot (/api/v3), futures (/fapi) and options
// (/eapi/v1). It performs no retries; retry policy belongs to callers.
type Client struct {
	apiKey            string
	apiSecret         string
	spotBaseURL       string
	futuresBaseURL    string
	optionsBaseURL    string
	clientOrderPrefix string

	recvWindow time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Entry
}

type Options struct {
	APIKey            string
	APISecret         string
	SpotBaseURL       string
	FuturesBaseURL    string
	OptionsBaseURL    string
	ClientOrderPrefix string
	RecvWindowMs      int64
	HTTPTimeoutSec    int64
	RateLimitRPS      int
	RateLimitBurst    int
	Log               *logrus.Logger
}

func NewClient(cfg config.ExchangeConfig, instanceID string, log *logrus.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	return NewClientWithOptions(Options{
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		SpotBaseURL:       cfg.SpotBaseURL,
		FuturesBaseURL:    cfg.FuturesBaseURL,
		OptionsBaseURL:    cfg.OptionsBaseURL,
		ClientOrderPrefix: instanceID,
		RecvWindowMs:      cfg.RecvWindowMs,
		HTTPTimeoutSec:    cfg.HTTPTimeoutSec,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
		Log:               log,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		spotBaseURL:       strings.TrimRight(opts.SpotBaseURL, "/"),
		futuresBaseURL:    strings.TrimRight(opts.FuturesBaseURL, "/"),
		optionsBaseURL:    strings.TrimRight(opts.OptionsBaseURL, "/"),
		clientOrderPrefix: normalizeClientOrderPrefix(opts.ClientOrderPrefix),
		recvWindow:        time.Duration(opts.RecvWindowMs) * time.Millisecond,
		httpClient:        &http.Client{Timeout: timeout},
		limiter:           limiter,
		log:               log.WithField("component", "binance"),
	}
}

func (c *Client) Name() string { return "binance" }

// NewClientOrderID produces a unique, prefix-owned client order id so a
// process can recognize its own orders in shared account listings.
func (c *Client) NewClientOrderID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return c.clientOrderPrefix + "-" + raw[:16]
}

func (c *Client) OwnsClientID(clientID string) bool {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return false
	}
	if clientID == c.clientOrderPrefix {
		return true
	}
	return strings.HasPrefix(clientID, c.clientOrderPrefix+"-")
}

func normalizeClientOrderPrefix(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	b := strings.Builder{}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "tk"
	}
	if len(out) > 12 {
		out = out[:12]
	}
	return out
}

// canonicalQuery serializes params into the exact byte string that is both
// signed and transmitted. Empty-valued entries are excluded before signing,
// and key order is deterministic, so signing the same input twice yields
// identical output.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k, vs := range params {
		keep := false
		for _, v := range vs {
			if v != "" {
				keep = true
				break
			}
		}
		if keep {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if v == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Sign returns the canonical query string for params and its hex-encoded
// HMAC-SHA256 under secret. Pure: no timestamping happens here, the caller
// inserts a fresh timestamp before every call.
func Sign(secret string, params url.Values) (query, signature string) {
	query = canonicalQuery(params)
	signature = sign(secret, query)
	return query, signature
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest issues one HTTP call and classifies the outcome. A fresh
// timestamp is taken immediately before signing so a caller-driven retry
// never reuses a stale one.
func (c *Client) doRequest(ctx context.Context, base, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if params == nil {
		params = url.Values{}
	}
	var rawQuery string
	if auth == AuthSigned {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		query, signature := Sign(c.apiSecret, params)
		rawQuery = query + "&signature=" + signature
	} else {
		rawQuery = canonicalQuery(params)
	}

	var (
		req *http.Request
		err error
	)
	urlStr := base + path
	if method == http.MethodGet || method == http.MethodDelete {
		if rawQuery != "" {
			urlStr += "?" + rawQuery
		}
		req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(rawQuery))
	}
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth == AuthAPIKey || auth == AuthSigned {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", core.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: read body: %v", core.ErrTransport, method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, classifyHTTPError(resp.StatusCode, body)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		// Some endpoints answer 200/202 with zero bytes when a WAF
		// intermediary swallows the request. Distinct recoverable error,
		// never parsed as success.
		return nil, fmt.Errorf("%w: %s %s: status %d", core.ErrEmptyResponse, method, path, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s %s: %s", core.ErrDecode, method, path, previewBody(body))
	}
	return body, nil
}

func (c *Client) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrDecode, err)
	}
	return nil
}

// previewBody truncates an error body for diagnostics, never splitting a
// multi-byte rune at the cut.
func previewBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= 256 {
		return s
	}
	cut := 256
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
