// Package settings serves the admin form that edits the stored collector
// options and shows connectivity notices.
package settings

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/matomo-bridge/internal/matomo"
	"github.com/JakeFAU/matomo-bridge/internal/options"
)

// FormName prefixes every field: options[enabled], options[site_id], ...
const FormName = "options"

// OverrideNotice marks a control locked by the environment.
const OverrideNotice = "Overridden by environment"

// Field describes one form control.
type Field struct {
	Key         string
	Label       string
	Input       string
	Class       string
	Caption     string
	Unit        string
	Description []string
}

// Fields lists the controls in display order.
var Fields = []Field{
	{Key: options.KeyEnabled, Label: "Enable tracking", Input: "checkbox", Caption: "Enable tracking for this website."},
	{Key: options.KeyEnabledAdmin, Label: "Enable back-end tracking", Input: "checkbox", Caption: "Enable tracking in the admin dashboard."},
	{Key: options.KeyDebug, Label: "Enable debugging", Input: "checkbox", Caption: "Enable debugging to print data to the browser console."},
	{Key: options.KeySiteID, Label: "Site ID", Input: "number", Class: "regular-text"},
	{Key: options.KeyURL, Label: "Tracker URL", Input: "text", Class: "regular-text"},
	{Key: options.KeyToken, Label: "Token", Input: "password", Class: "regular-text"},
	{Key: options.KeyViewsDays, Label: "Total Views Days", Input: "number", Class: "small-text", Unit: "days", Description: []string{
		"Retrieve total page views going back this many days.",
		"Use 0 to disable fetching total views.",
	}},
	{Key: options.KeyTrendingDays, Label: "Trending Days", Input: "number", Class: "small-text", Unit: "days", Description: []string{
		"Retrieve trending page views going back this many days.",
		"Use 0 to disable fetching trending views.",
	}},
	{Key: options.KeyViewsInterval, Label: "Trending/Popular Interval", Input: "number", Class: "small-text", Unit: "minutes", Description: []string{
		"Wait this long between fetching the view counts for a given page.",
		"Views are only fetched when a page is visited on the front end of the site.",
	}},
}

// Handler renders and saves the settings form.
type Handler struct {
	resolver   *options.Resolver
	httpClient *http.Client
	timeout    time.Duration
	title      string
	logger     *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(resolver *options.Resolver, httpClient *http.Client, timeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		resolver:   resolver,
		httpClient: httpClient,
		timeout:    timeout,
		title:      "Matomo Bridge",
		logger:     logger,
	}
}

type control struct {
	Field
	Name       string
	ID         string
	Value      string
	Checked    bool
	Overridden bool
	Notice     string
}

type notice struct {
	matomo.Notice
	Color string
}

type page struct {
	Title    string
	Action   string
	Saved    bool
	Error    string
	Notices  []notice
	Controls []control
}

// Show renders the form with the effective values and connectivity notices.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	opts := h.resolver.Resolve(r.Context())
	p := page{
		Title:    h.title,
		Action:   r.URL.Path,
		Saved:    r.URL.Query().Get("updated") == "true",
		Controls: controls(opts, h.resolver.Overrides()),
	}
	for _, n := range matomo.CheckConnection(r.Context(), h.httpClient, opts, h.timeout) {
		p.Notices = append(p.Notices, notice{Notice: n, Color: n.Type.Color()})
	}
	h.render(w, http.StatusOK, p)
}

// Save parses the posted options, sanitises and persists them, and
// redirects back to the form.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, page{Title: h.title, Action: r.URL.Path, Error: "invalid form submission"})
		return
	}
	if _, err := h.resolver.Save(r.Context(), ParseForm(r.PostForm)); err != nil {
		h.logger.Error("save settings failed", zap.Error(err))
		opts := h.resolver.Resolve(r.Context())
		h.render(w, http.StatusInternalServerError, page{
			Title:    h.title,
			Action:   r.URL.Path,
			Error:    "settings could not be saved",
			Controls: controls(opts, h.resolver.Overrides()),
		})
		return
	}
	h.logger.Info("settings saved")
	http.Redirect(w, r, r.URL.Path+"?updated=true", http.StatusSeeOther)
}

// ParseForm extracts the options[...] fields. Unchecked checkboxes and
// disabled controls are absent, so their keys are left out.
func ParseForm(form url.Values) options.Raw {
	raw := options.Raw{}
	for key, values := range form {
		name, ok := strings.CutPrefix(key, FormName+"[")
		if !ok || !strings.HasSuffix(name, "]") || len(values) == 0 {
			continue
		}
		name = strings.TrimSuffix(name, "]")
		if !knownKey(name) {
			continue
		}
		raw[name] = values[len(values)-1]
	}
	return raw
}

func knownKey(key string) bool {
	for _, k := range options.Keys {
		if k == key {
			return true
		}
	}
	return false
}

func controls(opts options.Options, overrides options.Overrides) []control {
	raw := opts.Raw()
	out := make([]control, 0, len(Fields))
	for _, f := range Fields {
		c := control{
			Field:      f,
			Name:       fmt.Sprintf("%s[%s]", FormName, f.Key),
			ID:         f.Key,
			Overridden: overrides.Has(f.Key),
		}
		if c.Overridden {
			c.Notice = OverrideNotice
		}
		if f.Input == "checkbox" {
			c.Checked = options.Bool(raw[f.Key])
			c.Value = f.Key
		} else {
			c.Value = fmt.Sprint(raw[f.Key])
		}
		out = append(out, c)
	}
	return out
}

func (h *Handler) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := formTemplate.Execute(w, p); err != nil {
		h.logger.Error("render settings failed", zap.Error(err))
	}
}

var formTemplate = template.Must(template.New("settings").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<div class="wrap">
<h2>{{.Title}}</h2>
<p class="description">Connect your website to Matomo Analytics.</p>
{{- if .Saved}}
<div class="notice notice-success"><p>Settings saved.</p></div>
{{- end}}
{{- if .Error}}
<div class="notice notice-error"><p>{{.Error}}</p></div>
{{- end}}
{{- range .Notices}}
<div style="color:{{.Color}};">{{.Label}}: {{.Message}}</div>
{{- end}}
<form method="post" action="{{.Action}}">
<table class="form-table">
{{- range .Controls}}
<tr>
<th scope="row"><label for="{{.ID}}">{{.Label}}</label></th>
<td>
{{- if eq .Input "checkbox"}}
<input type="checkbox" name="{{.Name}}" id="{{.ID}}" value="{{.Value}}"{{if .Checked}} checked{{end}}{{if .Overridden}} disabled{{end}}> <label for="{{.ID}}">{{.Caption}}</label>
{{- else}}
<input class="{{.Class}}" type="{{.Input}}" name="{{.Name}}" id="{{.ID}}" value="{{.Value}}"{{if .Overridden}} disabled{{end}}>{{with .Unit}} {{.}}{{end}}
{{- end}}
{{- with .Notice}} <span style="color:green;">{{.}}</span>{{end}}
{{- with .Description}}
<p class="description">{{range $i, $d := .}}{{if $i}} {{end}}{{$d}}{{end}}</p>
{{- end}}
</td>
</tr>
{{- end}}
</table>
<p class="submit"><input type="submit" class="button button-primary" value="Save Changes"></p>
</form>
</div>
</body>
</html>
`))
