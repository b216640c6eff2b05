package matomo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/matomo-bridge/internal/options"
)

// NoticeType is the severity of a connectivity notice.
type NoticeType string

// Notice severities.
const (
	NoticeSuccess NoticeType = "success"
	NoticeWarning NoticeType = "warning"
	NoticeError   NoticeType = "error"
)

// Color returns the display colour for the severity.
func (t NoticeType) Color() string {
	switch t {
	case NoticeSuccess:
		return "#00a32a"
	case NoticeWarning:
		return "#dba617"
	case NoticeError:
		return "#d63638"
	default:
		return "blue"
	}
}

// Notice is one labelled connectivity result.
type Notice struct {
	Type    NoticeType `json:"type"`
	Label   string     `json:"label"`
	Message string     `json:"message"`
}

type check struct {
	label string
	url   string
}

// CheckConnection checks the version endpoint and then the tracker endpoint,
// stopping at the first error. It returns nil when the URL or token is unset.
func CheckConnection(ctx context.Context, httpClient *http.Client, opts options.Options, timeout time.Duration) []Notice {
	if opts.URL == "" || opts.Token == "" {
		return nil
	}
	if !opts.Enabled {
		return []Notice{{Type: NoticeWarning, Label: "Matomo", Message: "Tracking is disabled."}}
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	checks := []check{
		{
			label: "Matomo Version",
			url: opts.URL + APIPath + "?" + url.Values{
				"module":     {"API"},
				"method":     {"API.getMatomoVersion"},
				"format":     {"json"},
				"token_auth": {opts.Token},
			}.Encode(),
		},
		{label: "Matomo Tracker", url: opts.URL + TrackerPath},
	}

	var notices []Notice
	for _, c := range checks {
		n := runCheck(ctx, httpClient, c, timeout)
		notices = append(notices, n)
		if n.Type == NoticeError {
			break
		}
	}
	return notices
}

func runCheck(ctx context.Context, httpClient *http.Client, c check, timeout time.Duration) Notice {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	n := Notice{Label: c.label}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		n.Type, n.Message = NoticeError, err.Error()
		return n
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		n.Type, n.Message = NoticeError, err.Error()
		return n
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		n.Type, n.Message = NoticeError, fmt.Sprintf("read response: %v", err)
		return n
	}
	if resp.StatusCode != http.StatusOK {
		n.Type = NoticeError
		n.Message = strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		return n
	}

	var decoded map[string]any
	if json.Unmarshal(body, &decoded) == nil {
		if v, ok := decoded["value"]; ok {
			n.Type, n.Message = NoticeSuccess, fmt.Sprint(v)
			return n
		}
		result, hasResult := decoded["result"]
		message, hasMessage := decoded["message"]
		if hasResult && hasMessage {
			n.Type = NoticeSuccess
			if fmt.Sprint(result) == "error" {
				n.Type = NoticeError
			}
			n.Message = fmt.Sprint(message)
			return n
		}
	}
	n.Type, n.Message = NoticeSuccess, "Connected"
	return n
}
