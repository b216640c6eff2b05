package annotate

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attribute names read by the collector's content tracking.
const (
	AttrTrackContent = "data-track-content"
	AttrContentName  = "data-content-name"
	AttrContentPiece = "data-content-piece"
)

const interactiveSelector = "a, button, input"

// Fragment annotates an HTML fragment as the content block name. Malformed
// markup is tolerated; input that yields no nodes is returned unchanged.
func Fragment(content, name string) string {
	if content == "" {
		return content
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil || len(nodes) == 0 {
		return content
	}

	annotateNodes(nodes, name)

	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return content
		}
	}
	return b.String()
}

// annotateNodes treats nodes as the top level of one content block.
func annotateNodes(nodes []*html.Node, name string) {
	top := goquery.NewDocumentFromNode(nodes[0]).AddNodes(nodes[1:]...)
	elements := top.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Nodes[0].Type == html.ElementNode
	})
	if elements.Length() == 0 {
		return
	}

	elements.AddSelection(elements.Find("*")).
		RemoveAttr(AttrTrackContent).
		RemoveAttr(AttrContentName)

	elements.SetAttr(AttrTrackContent, "").SetAttr(AttrContentName, name)

	elements.Filter(interactiveSelector).
		AddSelection(elements.Find(interactiveSelector)).
		Each(func(_ int, s *goquery.Selection) {
			if _, ok := s.Attr(AttrContentPiece); ok {
				return
			}
			var piece string
			if goquery.NodeName(s) == "input" {
				if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "submit") {
					return
				}
				piece = s.AttrOr("value", "")
			} else {
				piece = s.Text()
			}
			if piece = strings.TrimSpace(piece); piece != "" {
				s.SetAttr(AttrContentPiece, piece)
			}
		})
}
