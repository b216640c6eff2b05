package annotate

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestNewAnnotatorValidatesBlocks(t *testing.T) {
	t.Parallel()

	_, err := NewAnnotator([]Block{{Selector: "[[", NameAttr: "data-id"}})
	require.Error(t, err)

	_, err = NewAnnotator([]Block{{Selector: ".ad"}})
	require.Error(t, err)

	a, err := NewAnnotator(nil)
	require.NoError(t, err)
	require.False(t, a.Enabled())
}

func TestDocumentOuterBlockWins(t *testing.T) {
	t.Parallel()

	a, err := NewAnnotator([]Block{
		{Selector: ".mai-ad", NameAttr: "data-ad-name"},
		{Selector: ".mai-cca", NameAttr: "data-cca-id"},
	})
	require.NoError(t, err)

	page := `<html><head><title>t</title></head><body>
<div class="mai-cca" data-cca-id="Hero"><div class="mai-ad" data-ad-name="Banner"><a href="/buy">Buy</a></div></div>
<div class="mai-ad" data-ad-name="Sidebar"><button>Go</button></div>
<div class="mai-ad" data-ad-name=""><a href="/skip">Skip</a></div>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	require.Equal(t, 3, a.Document(doc))

	_, onWrapper := doc.Find(".mai-cca").Attr(AttrTrackContent)
	require.False(t, onWrapper)
	require.Equal(t, "Hero", doc.Find(`[data-ad-name="Banner"]`).AttrOr(AttrContentName, ""))
	_, nested := doc.Find(`a[href="/buy"]`).Attr(AttrTrackContent)
	require.False(t, nested)
	require.Equal(t, "Buy", doc.Find(`a[href="/buy"]`).AttrOr(AttrContentPiece, ""))

	require.Equal(t, "Sidebar", doc.Find("button").AttrOr(AttrContentName, ""))
	require.Equal(t, "Go", doc.Find("button").AttrOr(AttrContentPiece, ""))

	_, skipped := doc.Find(`a[href="/skip"]`).Attr(AttrContentPiece)
	require.False(t, skipped)
}

func TestDocumentNilAnnotator(t *testing.T) {
	t.Parallel()

	var a *Annotator
	require.Equal(t, 0, a.Document(nil))
}

func TestDocumentMarksEachTopLevelChild(t *testing.T) {
	t.Parallel()

	a, err := NewAnnotator([]Block{{Selector: ".mai-cca", NameAttr: "data-cca-id"}})
	require.NoError(t, err)

	inner := `<p>one</p><p>two <a href="/go">Go</a></p>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><div class="mai-cca" data-cca-id="CCA1">` + inner + `</div><div class="mai-cca" data-cca-id="Empty"></div></body></html>`))
	require.NoError(t, err)

	require.Equal(t, 1, a.Document(doc))

	block := doc.Find(`[data-cca-id="CCA1"]`)
	_, onWrapper := block.Attr(AttrTrackContent)
	require.False(t, onWrapper)
	block.Children().Each(func(_ int, p *goquery.Selection) {
		require.Equal(t, "CCA1", p.AttrOr(AttrContentName, ""))
		_, marked := p.Attr(AttrTrackContent)
		require.True(t, marked)
	})
	require.Equal(t, 2, block.Children().Length())
	require.Equal(t, "Go", doc.Find(`a[href="/go"]`).AttrOr(AttrContentPiece, ""))

	got, err := block.Html()
	require.NoError(t, err)
	require.Equal(t, Fragment(inner, "CCA1"), got)
}
