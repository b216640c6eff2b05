package annotate

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Block locates content blocks inside a full page. Selector is a CSS
// selector; NameAttr names the attribute holding the block's content name.
type Block struct {
	Selector string `mapstructure:"selector"`
	NameAttr string `mapstructure:"name_attr"`
}

type compiledBlock struct {
	Block
	matcher goquery.Matcher
}

// Annotator annotates configured content blocks in whole documents.
type Annotator struct {
	blocks []compiledBlock
}

// NewAnnotator compiles the block selectors.
func NewAnnotator(blocks []Block) (*Annotator, error) {
	compiled := make([]compiledBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.NameAttr == "" {
			return nil, fmt.Errorf("content block %q: name_attr is required", b.Selector)
		}
		sel, err := cascadia.Compile(b.Selector)
		if err != nil {
			return nil, fmt.Errorf("content block %q: %w", b.Selector, err)
		}
		compiled = append(compiled, compiledBlock{Block: b, matcher: sel})
	}
	return &Annotator{blocks: compiled}, nil
}

// Enabled reports whether any blocks are configured.
func (a *Annotator) Enabled() bool {
	return a != nil && len(a.blocks) > 0
}

// Document annotates the inner fragment of every named block in doc,
// innermost first, and returns the number of blocks annotated. The block
// element itself is left as is; its top-level children carry the markers.
// Blocks without a name or without children are skipped.
func (a *Annotator) Document(doc *goquery.Document) int {
	if !a.Enabled() || doc == nil || len(doc.Nodes) == 0 {
		return 0
	}
	names := make(map[*html.Node]string)
	for _, b := range a.blocks {
		doc.FindMatcher(b.matcher).Each(func(_ int, s *goquery.Selection) {
			name := strings.TrimSpace(s.AttrOr(b.NameAttr, ""))
			if name == "" {
				return
			}
			if _, seen := names[s.Nodes[0]]; !seen {
				names[s.Nodes[0]] = name
			}
		})
	}
	if len(names) == 0 {
		return 0
	}

	var ordered []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if _, ok := names[n]; ok {
			ordered = append(ordered, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Nodes[0])

	annotated := 0
	for i := len(ordered) - 1; i >= 0; i-- {
		block := ordered[i]
		var children []*html.Node
		for c := block.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		if len(children) == 0 {
			continue
		}
		annotateNodes(children, names[block])
		annotated++
	}
	return annotated
}
