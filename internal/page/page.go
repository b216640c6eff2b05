// Package page describes the resource a request is viewing: a single content
// item, an index, a taxonomy term, or a date, author, or search listing.
package page

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Kind classifies the viewed resource.
type Kind string

// Resource kinds, mirroring the usual CMS permalink structure.
const (
	KindSingular Kind = "singular"
	KindHome     Kind = "home"
	KindArchive  Kind = "archive"
	KindTerm     Kind = "term"
	KindDate     Kind = "date"
	KindAuthor   Kind = "author"
	KindSearch   Kind = "search"
)

// Descriptor is the read-only record of the current resource.
type Descriptor struct {
	Kind  Kind   `json:"kind,omitempty"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Singular reports whether the descriptor points at one content item.
func (d Descriptor) Singular() bool {
	return d.Kind == KindSingular
}

// Rule maps a path pattern to a resource kind. Pattern is a regular
// expression matched against the request path; an "id" named group supplies
// the descriptor id. When Query is set the rule only matches requests
// carrying that query parameter.
type Rule struct {
	Pattern string `mapstructure:"pattern"`
	Query   string `mapstructure:"query"`
	Kind    Kind   `mapstructure:"kind"`
	Name    string `mapstructure:"name"`
	ID      string `mapstructure:"id"`
}

// DefaultRules follows the common CMS permalink layout.
var DefaultRules = []Rule{
	{Pattern: `^/`, Query: "s", Kind: KindSearch, Name: "Search"},
	{Pattern: `^/search/[^/]+/?$`, Kind: KindSearch, Name: "Search"},
	{Pattern: `^/author/[^/]+/?$`, Kind: KindAuthor, Name: "Author"},
	{Pattern: `^/category/(?:[^/]+/)*(?P<id>[^/]+)/?$`, Kind: KindTerm, Name: "Category"},
	{Pattern: `^/tag/(?P<id>[^/]+)/?$`, Kind: KindTerm, Name: "Tag"},
	{Pattern: `^/\d{4}/\d{2}/\d{2}/(?P<id>[^/]+)/?$`, Kind: KindSingular, Name: "Post"},
	{Pattern: `^/\d{4}(?:/\d{2}(?:/\d{2})?)?/?$`, Kind: KindDate, Name: "Date"},
	{Pattern: `^/?$`, Kind: KindHome, Name: "Posts"},
	{Pattern: `^/(?P<id>[^/]+)/?$`, Kind: KindSingular, Name: "Page"},
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Classifier derives descriptors from requests.
type Classifier struct {
	rules   []compiledRule
	baseURL string
}

// NewClassifier compiles rules. An empty rule set uses DefaultRules. baseURL,
// when set, is used to build absolute resource URLs.
func NewClassifier(rules []Rule, baseURL string) (*Classifier, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile page rule %d: %w", i, err)
		}
		compiled = append(compiled, compiledRule{Rule: rule, re: re})
	}
	return &Classifier{rules: compiled, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Describe returns the descriptor for r. Requests that match no rule get an
// empty descriptor carrying only the URL.
func (c *Classifier) Describe(r *http.Request) Descriptor {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	query := r.URL.Query()
	for _, rule := range c.rules {
		if rule.Query != "" && query.Get(rule.Query) == "" {
			continue
		}
		m := rule.re.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		d := Descriptor{Kind: rule.Kind, Name: rule.Name, URL: c.absolute(r, path)}
		if rule.ID != "" {
			d.ID = rule.ID
		} else if idx := rule.re.SubexpIndex("id"); idx > 0 && idx < len(m) {
			d.ID = m[idx]
		}
		switch rule.Kind {
		case KindSingular:
			d.Type = "post"
		case KindTerm:
			d.Type = "term"
		case KindHome:
			d.URL = c.absolute(r, "/")
		case KindDate, KindAuthor, KindSearch:
			d.URL = ""
			d.ID = ""
		}
		return d
	}
	return Descriptor{URL: c.absolute(r, path)}
}

func (c *Classifier) absolute(r *http.Request, path string) string {
	base := c.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		host := r.Host
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			host = fwd
		}
		base = (&url.URL{Scheme: scheme, Host: host}).String()
	}
	return base + path
}

// RequestURL returns the absolute URL of r, query included.
func (c *Classifier) RequestURL(r *http.Request) string {
	return c.absolute(r, r.URL.RequestURI())
}

// Title picks the page-view title: the document title when known, else the
// request path.
func Title(d Descriptor, r *http.Request) string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}
