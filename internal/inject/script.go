// Package inject renders the client tracking script and places it into HTML
// responses.
package inject

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
)

// DebugPrefix starts every console debug line.
const DebugPrefix = "Matomo Bridge / "

// Config is the data the client script needs.
type Config struct {
	URL        string
	SiteID     uint64
	Dimensions map[int]string
	Debug      []string
}

type dimension struct {
	ID    int
	Value string
}

type scriptData struct {
	URL        string
	SiteID     string
	Dimensions []dimension
	Debug      []string
}

var scriptTemplate = template.Must(template.New("script").Parse(`<script>
(function() {
	var _paq = window._paq = window._paq || [];
{{- range .Dimensions}}
	_paq.push(['setCustomDimension', {{.ID}}, {{.Value}}]);
{{- end}}
	_paq.push(['enableLinkTracking']);
	_paq.push(['trackPageView']);
	_paq.push(['trackVisibleContentImpressions']);
	(function() {
		var u = {{.URL}};
		_paq.push(['setTrackerUrl', u + 'matomo.php']);
		_paq.push(['setSiteId', {{.SiteID}}]);
		var d = document, g = d.createElement('script'), s = d.getElementsByTagName('script')[0];
		g.async = true; g.src = u + 'matomo.js'; s.parentNode.insertBefore(g, s);
	})();
{{- range .Debug}}
	console.log({{.}});
{{- end}}
})();
</script>`))

// Script renders the bootstrap snippet. Dimensions are pushed in ascending id
// order before the page view; empty values are skipped.
func Script(cfg Config) (string, error) {
	data := scriptData{URL: cfg.URL, SiteID: fmt.Sprint(cfg.SiteID)}
	for id, value := range cfg.Dimensions {
		if id > 0 && value != "" {
			data.Dimensions = append(data.Dimensions, dimension{ID: id, Value: value})
		}
	}
	sort.Slice(data.Dimensions, func(i, j int) bool { return data.Dimensions[i].ID < data.Dimensions[j].ID })
	data.Debug = prefixed(cfg.Debug)

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render script: %w", err)
	}
	return buf.String(), nil
}

// DebugScript renders only the console debug lines, for pages that are not
// tracked but still carry debug output.
func DebugScript(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := debugTemplate.Execute(&buf, prefixed(messages)); err != nil {
		return ""
	}
	return buf.String()
}

var debugTemplate = template.Must(template.New("debug").Parse(`<script>
{{- range .}}
console.log({{.}});
{{- end}}
</script>`))

func prefixed(messages []string) []string {
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		out = append(out, DebugPrefix+msg)
	}
	return out
}
