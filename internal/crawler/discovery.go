package crawler

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vishalnemlekar/instabot/helpers"
	"github.com/vishalnemlekar/instabot/logger"
)

// ParseFacets extracts the facet tiles from a rendered parent page, in
// document order. Tiles without an id or a label are dropped.
func ParseFacets(html string, sel Selectors) ([]Facet, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	facets := []Facet{}
	doc.Find(sel.Tile).Each(func(_ int, s *goquery.Selection) {
		id := strings.TrimSpace(s.AttrOr(sel.TileIDAttr, ""))
		label := tileLabel(s, sel.TileLabels)
		if id == "" || label == "" {
			return
		}
		facets = append(facets, Facet{ID: id, Label: label})
	})
	return facets, nil
}

// tileLabel takes the text of the first label candidate present in the tile,
// or the tile's own text, and keeps its last non-blank line
func tileLabel(s *goquery.Selection, candidates []string) string {
	text := ""
	found := false
	for _, c := range candidates {
		if el := s.Find(c).First(); el.Length() > 0 {
			text = innerText(el)
			found = true
			break
		}
	}
	if !found {
		text = innerText(s)
	}
	return helpers.LastNonBlankLine(text)
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "figcaption": true,
	"figure": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "tr": true, "ul": true,
}

// innerText approximates the rendered text of s: block children sit on
// their own lines, script and style content is skipped
func innerText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); {
			case name == "#text":
				b.WriteString(c.Text())
			case name == "br":
				b.WriteByte('\n')
			case name == "script" || name == "style" || name == "#comment":
			case blockElements[name]:
				b.WriteByte('\n')
				walk(c)
				b.WriteByte('\n')
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return b.String()
}

// DiscoverFacets reads the current page and returns its facets. Failures are
// logged and yield an empty list.
func DiscoverFacets(ctx context.Context, b Browser, sel Selectors, log *logger.Logger) []Facet {
	html, err := b.HTML(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read page for tiles")
		return []Facet{}
	}

	facets, err := ParseFacets(html, sel)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse tiles")
		return []Facet{}
	}
	return facets
}
