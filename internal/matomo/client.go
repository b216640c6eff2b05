// Package matomo talks to a Matomo collector: the HTTP tracking API
// (matomo.php), the reporting API (index.php?module=API), and the
// connectivity checks shown on the settings screen.
package matomo

import (
	"context"
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

	"go.uber.org/zap"
)

// Paths relative to the collector base URL.
const (
	TrackerPath = "matomo.php"
	ScriptPath  = "matomo.js"
	APIPath     = "index.php"
)

// ErrNotConfigured is returned when a client is built without a site id,
// base URL, or token.
var ErrNotConfigured = errors.New("matomo client is not configured")

// Config describes one collector site.
type Config struct {
	BaseURL    string
	SiteID     uint64
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client sends tracking requests and reads reports.
type Client struct {
	baseURL    *url.URL
	siteID     uint64
	token      string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.SiteID == 0 || cfg.BaseURL == "" || cfg.Token == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse matomo url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		siteID:     cfg.SiteID,
		token:      cfg.Token,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// SiteID returns the collector site id.
func (c *Client) SiteID() uint64 {
	return c.siteID
}

// BaseURL returns the collector base URL, always ending with a slash.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Visit carries the visitor context attached to a tracking request.
type Visit struct {
	URL        string
	Referrer   string
	UserAgent  string
	IP         string
	Language   string
	UserID     string
	VisitorID  string
	Dimensions map[int]string
}

// TrackPageView records a page view titled title.
func (c *Client) TrackPageView(ctx context.Context, v Visit, title string) error {
	q := c.trackingQuery(v)
	q.Set("action_name", title)
	if err := c.track(ctx, q); err != nil {
		return err
	}
	c.logger.Debug("page view tracked", zap.String("title", title), zap.String("url", v.URL))
	return nil
}

func (c *Client) trackingQuery(v Visit) url.Values {
	q := url.Values{}
	q.Set("idsite", strconv.FormatUint(c.siteID, 10))
	q.Set("rec", "1")
	q.Set("apiv", "1")
	q.Set("send_image", "0")
	q.Set("rand", strconv.FormatInt(time.Now().UnixNano(), 36))
	q.Set("token_auth", c.token)
	setIf(q, "url", v.URL)
	setIf(q, "urlref", v.Referrer)
	setIf(q, "ua", v.UserAgent)
	setIf(q, "cip", v.IP)
	setIf(q, "lang", v.Language)
	setIf(q, "uid", v.UserID)
	if isVisitorID(v.VisitorID) {
		q.Set("_id", v.VisitorID)
	}
	keys := make([]int, 0, len(v.Dimensions))
	for k := range v.Dimensions {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if k > 0 && v.Dimensions[k] != "" {
			q.Set("dimension"+strconv.Itoa(k), v.Dimensions[k])
		}
	}
	return q
}

func (c *Client) track(ctx context.Context, q url.Values) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	endpoint := c.resolve(TrackerPath)
	endpoint.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build tracking request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send tracking request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tracking request: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PageViews returns the number of hits pageURL received over the last days days.
func (c *Client) PageViews(ctx context.Context, pageURL string, days uint64) (int64, error) {
	if days == 0 {
		return 0, nil
	}
	q := url.Values{}
	q.Set("module", "API")
	q.Set("method", "Actions.getPageUrl")
	q.Set("idSite", strconv.FormatUint(c.siteID, 10))
	q.Set("period", "range")
	q.Set("date", "last"+strconv.FormatUint(days, 10))
	q.Set("pageUrl", pageURL)
	q.Set("format", "json")
	q.Set("token_auth", c.token)

	var rows []struct {
		Hits json.Number `json:"nb_hits"`
	}
	if err := c.api(ctx, q, &rows); err != nil {
		return 0, err
	}
	var total int64
	for _, row := range rows {
		n, err := row.Hits.Int64()
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

func (c *Client) api(ctx context.Context, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	endpoint := c.resolve(APIPath)
	endpoint.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build api request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send api request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api request: unexpected status %d", resp.StatusCode)
	}
	var apiErr struct {
		Result  string `json:"result"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Result == "error" {
		return fmt.Errorf("api error: %s", apiErr.Message)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string) *url.URL {
	return c.baseURL.ResolveReference(&url.URL{Path: path})
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func isVisitorID(id string) bool {
	if len(id) != 16 {
		return false
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// VisitorIDFromCookies returns the visitor id stored by the JavaScript
// tracker in its _pk_id cookie, or "" when absent.
func VisitorIDFromCookies(r *http.Request) string {
	for _, c := range r.Cookies() {
		if !strings.HasPrefix(c.Name, "_pk_id") {
			continue
		}
		id, _, _ := strings.Cut(c.Value, ".")
		if isVisitorID(id) {
			return strings.ToLower(id)
		}
	}
	return ""
}
