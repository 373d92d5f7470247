// internal/browser/page/page.go
package page

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
	"github.com/xkilldash9x/procfilter/internal/browser/parser"
	"github.com/xkilldash9x/procfilter/internal/browser/style"
)

// Page bundles a parsed document with the style engine built from its sheets.
type Page struct {
	Document *dom.Document
	Styles   *style.Engine

	baseDir string
	logger  *zap.Logger
}

// Options controls how a page is loaded.
type Options struct {
	// BaseDir resolves relative <link rel="stylesheet"> hrefs on disk. Empty
	// disables linked sheets.
	BaseDir string
	// ExtraCSS is appended after the page's own sheets, in order.
	ExtraCSS []string
}

// Load parses an HTML document and its inline and linked stylesheets.
func Load(r io.Reader, opts Options, logger *zap.Logger) (*Page, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, err
	}
	p := &Page{
		Document: doc,
		Styles:   style.NewEngine(),
		baseDir:  opts.BaseDir,
		logger:   logger.Named("page"),
	}
	p.collectStylesheets()
	for _, css := range opts.ExtraCSS {
		p.AddStylesheet(css)
	}
	return p, nil
}

// LoadFile loads a page from disk. Linked sheets resolve next to the file.
func LoadFile(path string, extraCSS []string, logger *zap.Logger) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()
	return Load(f, Options{BaseDir: filepath.Dir(path), ExtraCSS: extraCSS}, logger)
}

// AddStylesheet parses css and registers it as an author sheet.
func (p *Page) AddStylesheet(css string) {
	sheet := parser.NewParser(css).Parse()
	p.Styles.AddAuthorSheet(sheet)
	p.logger.Debug("Added author stylesheet.", zap.Int("rules", len(sheet.Rules)))
}

// collectStylesheets walks <style> and <link rel="stylesheet"> elements in
// document order so the cascade sees sheets in the order the page declares them.
func (p *Page) collectStylesheets() {
	gqDoc := goquery.NewDocumentFromNode(p.Document.Root())
	gqDoc.Find(`style, link[rel~=stylesheet][href]`).Each(func(i int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "style" {
			if typ, ok := sel.Attr("type"); ok && typ != "" && !strings.EqualFold(typ, "text/css") {
				return
			}
			p.AddStylesheet(sel.Text())
			return
		}
		href, _ := sel.Attr("href")
		css, err := p.readLinked(href)
		if err != nil {
			p.logger.Debug("Skipping linked stylesheet.", zap.String("href", href), zap.Error(err))
			return
		}
		p.AddStylesheet(css)
	})
}

func (p *Page) readLinked(href string) (string, error) {
	if p.baseDir == "" {
		return "", fmt.Errorf("no base directory for linked stylesheets")
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href: %w", err)
	}
	if u.Scheme != "" || u.Host != "" {
		return "", fmt.Errorf("remote stylesheets are not fetched")
	}
	data, err := os.ReadFile(filepath.Join(p.baseDir, filepath.FromSlash(u.Path)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
