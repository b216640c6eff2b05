package annotate

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, fragment string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	require.NoError(t, err)
	return doc
}

func TestFragmentEmptyReturnsInput(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Fragment("", "Widget"))
}

func TestFragmentMultipleTopLevelElements(t *testing.T) {
	t.Parallel()

	got := Fragment(`<p>Hello</p><a href="/x">Click</a>`, "Widget")

	require.Equal(t,
		`<p data-track-content="" data-content-name="Widget">Hello</p>`+
			`<a href="/x" data-track-content="" data-content-name="Widget" data-content-piece="Click">Click</a>`,
		got)
}

func TestFragmentSingleWrapper(t *testing.T) {
	t.Parallel()

	got := Fragment(`<div><span>Hi</span></div>`, "Ad1")

	require.Equal(t, `<div data-track-content="" data-content-name="Ad1"><span>Hi</span></div>`, got)
}

func TestFragmentSkipsTextAndComments(t *testing.T) {
	t.Parallel()

	got := Fragment("intro <!-- note --><section>a</section>\n<aside>b</aside> outro", "Mixed")

	require.True(t, strings.HasPrefix(got, "intro <!-- note --><section data-track-content"))
	require.True(t, strings.HasSuffix(got, "</aside> outro"))
	doc := parse(t, got)
	require.Equal(t, 2, doc.Find("[data-track-content]").Length())
	require.Equal(t, 2, doc.Find(`[data-content-name="Mixed"]`).Length())
}

func TestFragmentReannotationReplacesMarkers(t *testing.T) {
	t.Parallel()

	first := Fragment(`<div><a href="/a">Go</a></div><p>x</p>`, "First")
	second := Fragment(first, "Second")

	doc := parse(t, second)
	div := doc.Find("div")
	require.Len(t, div.Nodes[0].Attr, 2)
	require.Equal(t, "Second", div.AttrOr(AttrContentName, ""))
	require.Equal(t, 0, doc.Find(`[data-content-name="First"]`).Length())

	a := doc.Find("a")
	require.Len(t, a.Nodes[0].Attr, 2)
	require.Equal(t, "Go", a.AttrOr(AttrContentPiece, ""))
}

func TestFragmentStripsNestedMarkers(t *testing.T) {
	t.Parallel()

	inner := Fragment(`<a href="/ad">Buy now</a>`, "Ad")
	outer := Fragment(`<div class="cca">`+inner+`</div>`, "CCA")

	doc := parse(t, outer)
	require.Equal(t, 1, doc.Find("[data-track-content]").Length())
	require.Equal(t, "CCA", doc.Find(".cca").AttrOr(AttrContentName, ""))
	_, hasName := doc.Find("a").Attr(AttrContentName)
	require.False(t, hasName)
	require.Equal(t, "Buy now", doc.Find("a").AttrOr(AttrContentPiece, ""))
}

func TestFragmentKeepsExistingPiece(t *testing.T) {
	t.Parallel()

	got := Fragment(`<div><a data-content-piece="Custom">Click</a><button> Send </button></div>`, "Form")

	doc := parse(t, got)
	require.Equal(t, "Custom", doc.Find("a").AttrOr(AttrContentPiece, ""))
	require.Equal(t, "Send", doc.Find("button").AttrOr(AttrContentPiece, ""))
}

func TestFragmentInputs(t *testing.T) {
	t.Parallel()

	got := Fragment(`<form><input type="Submit" value=" Subscribe "><input type="text" value="name"><a href="#"> </a></form>`, "Newsletter")

	doc := parse(t, got)
	require.Equal(t, "Subscribe", doc.Find(`input[value=" Subscribe "]`).AttrOr(AttrContentPiece, ""))
	_, hasPiece := doc.Find(`input[type="text"]`).Attr(AttrContentPiece)
	require.False(t, hasPiece)
	_, hasPiece = doc.Find("a").Attr(AttrContentPiece)
	require.False(t, hasPiece)
}

func TestFragmentEscapesName(t *testing.T) {
	t.Parallel()

	name := `Tom & "Jerry" <3`
	got := Fragment(`<p>x</p>`, name)

	require.NotContains(t, got, `"Jerry"`)
	require.Equal(t, name, parse(t, got).Find("p").AttrOr(AttrContentName, ""))
}

func TestFragmentToleratesMalformedMarkup(t *testing.T) {
	t.Parallel()

	got := Fragment(`<div><p>unclosed <b>bold</div><a href=/x>Link`, "Broken")

	doc := parse(t, got)
	require.Equal(t, "Broken", doc.Find("div").AttrOr(AttrContentName, ""))
	require.Equal(t, "Link", doc.Find("a").AttrOr(AttrContentPiece, ""))
}

func TestFragmentTextOnly(t *testing.T) {
	t.Parallel()

	require.Equal(t, "plain text", Fragment("plain text", "Text"))
}
