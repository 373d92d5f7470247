package style

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/procfilter/internal/browser/parser"
)

const page = `<html><body>
<div id="outer" class="wrap" style="color: blue">
  <p id="para" class="note">text</p>
  <span id="inline" style="display: inline-block !important; margin: 1px 2px">s</span>
</div>
<div id="ad" class="banner"></div>
</body></html>`

const sheet = `
.wrap { color: red; font-weight: bold; }
.note { visibility: hidden; }
#para { visibility: visible; }
.note { position: absolute; }
span { display: block !important; }
.banner::before { content: "Sponsored"; color: green; }
.banner:after { content: 'x'; }
div.banner { display: flex; opacity: inherit; padding: 1px 2px 3px; }
`

func setup(t *testing.T) (*Engine, *html.Node) {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(page))
	require.NoError(t, err)
	engine := NewEngine()
	engine.AddAuthorSheet(parser.NewParser(sheet).Parse())
	return engine, doc
}

func find(t *testing.T, doc *html.Node, id string) *html.Node {
	t.Helper()
	n := htmlquery.FindOne(doc, "//*[@id='"+id+"']")
	require.NotNil(t, n, "element %s", id)
	return n
}

func TestComputedStyle_Cascade(t *testing.T) {
	engine, doc := setup(t)
	require.Equal(t, 1, engine.AuthorSheetCount())

	outer := engine.ComputedStyle(find(t, doc, "outer"), "")
	assert.Equal(t, "blue", outer.Get("color"), "inline beats author")
	assert.Equal(t, "bold", outer.Get("font-weight"))
	assert.Equal(t, "block", outer.Get("display"), "user agent default")

	para := engine.ComputedStyle(find(t, doc, "para"), "")
	assert.Equal(t, "visible", para.Get("visibility"), "id beats class")
	assert.Equal(t, "absolute", para.Get("position"))

	span := engine.ComputedStyle(find(t, doc, "inline"), "")
	assert.Equal(t, "inline-block", span.Get("display"), "important inline beats important author")
	assert.Equal(t, "2px", span.Get("margin-right"))
	assert.Equal(t, "1px", span.Get("margin-bottom"))
}

func TestComputedStyle_Inheritance(t *testing.T) {
	engine, doc := setup(t)

	para := engine.ComputedStyle(find(t, doc, "para"), "")
	assert.Equal(t, "blue", para.Get("color"))
	assert.Equal(t, "bold", para.Get("fontWeight"))

	ad := engine.ComputedStyle(find(t, doc, "ad"), "")
	assert.Equal(t, "1", ad.Get("opacity"), "inherit falls back to the initial value")
	assert.Equal(t, "flex", ad.Get("display"))
	assert.Equal(t, "2px", ad.Get("padding-left"))
	assert.Equal(t, "normal", ad.Get("content"))
	assert.Equal(t, "", ad.Get("never-set"))
}

func TestComputedStyle_PseudoElements(t *testing.T) {
	engine, doc := setup(t)
	ad := find(t, doc, "ad")

	before := engine.ComputedStyle(ad, "::before")
	assert.Equal(t, `"Sponsored"`, before.Get("content"))
	assert.Equal(t, "green", before.Get("color"))

	after := engine.ComputedStyle(ad, ":after")
	assert.Equal(t, `'x'`, after.Get("content"))
	assert.Equal(t, "rgb(0, 0, 0)", after.Get("color"))

	none := engine.ComputedStyle(find(t, doc, "para"), "before")
	assert.Equal(t, "none", none.Get("content"))
	assert.Equal(t, "blue", none.Get("color"), "pseudo-elements inherit from the originating element")
}

func TestComputedStyle_NonElement(t *testing.T) {
	engine, doc := setup(t)
	c := engine.ComputedStyle(doc, "")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "", c.CSSText())
}

func TestComputed_CSSText(t *testing.T) {
	c := &Computed{props: map[parser.Property]parser.Value{
		"opacity": "1",
		"color":   "red",
		"display": "none",
	}}
	assert.Equal(t, "color: red; display: none; opacity: 1;", c.CSSText())
}

func TestResolver_Memoizes(t *testing.T) {
	engine, doc := setup(t)
	r := engine.NewResolver()
	para := find(t, doc, "para")

	first := r.ComputedStyle(para, "")
	assert.Same(t, first, r.ComputedStyle(para, ""))
	assert.NotSame(t, first, r.ComputedStyle(para, "before"))
}

func TestCanonicalProperty(t *testing.T) {
	testCases := map[string]parser.Property{
		"display":          "display",
		"backgroundColor":  "background-color",
		"Font-Size":        "font-size",
		"cssFloat":         "float",
		"webkitTransform":  "-webkit-transform",
		"WebkitAppearance": "-webkit-appearance",
		" color ":          "color",
	}
	for in, expected := range testCases {
		assert.Equal(t, expected, CanonicalProperty(in), in)
	}
}

func TestNormalizePseudo(t *testing.T) {
	assert.Equal(t, "before", NormalizePseudo("::before"))
	assert.Equal(t, "after", NormalizePseudo(":AFTER"))
	assert.Equal(t, "", NormalizePseudo(""))
	assert.Equal(t, "", NormalizePseudo("null"))
}
