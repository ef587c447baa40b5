package extract

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Selectors are compiled once and shared. An invalid selector is a
// programming error and panics on first use.
var matchers sync.Map

func matcher(selector string) goquery.Matcher {
	if m, ok := matchers.Load(selector); ok {
		return m.(goquery.Matcher)
	}
	m := cascadia.MustCompile(selector)
	matchers.Store(selector, m)
	return m
}

// Find returns the elements of s matching selector.
func Find(s *goquery.Selection, selector string) *goquery.Selection {
	return s.FindMatcher(matcher(selector))
}

// Root returns the document root of res as a selection.
func Root(res *engine.FetchResult) (*goquery.Selection, error) {
	doc, err := res.Document()
	if err != nil {
		return nil, models.NewDataShapeError(res.URL(), "unparseable html", err)
	}
	return doc.Selection, nil
}

// Require returns the first element matching selector, or a DATA_SHAPE
// error when there is none.
func Require(res *engine.FetchResult, selector string) (*goquery.Selection, error) {
	root, err := Root(res)
	if err != nil {
		return nil, err
	}
	sel := Find(root, selector).First()
	if sel.Length() == 0 {
		return nil, models.NewDataShapeError(res.URL(), "element "+selector+" not found", nil)
	}
	return sel, nil
}

// Text selects the normalized text of the first match, "" when absent.
// An empty selector means the node itself.
func Text(selector string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		return TextOf(scope(s, selector).First())
	}
}

// OwnText selects the text of the first match without its descendants'
// text, the way an XPath text() step does.
func OwnText(selector string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		first := scope(s, selector).First()
		if first.Length() == 0 {
			return ""
		}
		var b strings.Builder
		for c := first.Get(0).FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return normalizeSpace(b.String())
	}
}

// Texts selects the normalized text of every match.
func Texts(selector string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		sel := scope(s, selector)
		out := make([]string, 0, sel.Length())
		sel.Each(func(_ int, el *goquery.Selection) {
			if t := TextOf(el); t != "" {
				out = append(out, t)
			}
		})
		return out
	}
}

// Attr selects an attribute of the first match, "" when absent.
func Attr(selector, name string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		v, _ := scope(s, selector).First().Attr(name)
		return strings.TrimSpace(v)
	}
}

// Attrs selects an attribute of every match that carries it.
func Attrs(selector, name string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		sel := scope(s, selector)
		out := make([]string, 0, sel.Length())
		sel.Each(func(_ int, el *goquery.Selection) {
			if v, ok := el.Attr(name); ok && v != "" {
				out = append(out, v)
			}
		})
		return out
	}
}

// HTML selects the inner HTML of the first match, "" when absent.
func HTML(selector string) func(*goquery.Selection) any {
	return func(s *goquery.Selection) any {
		h, err := scope(s, selector).First().Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(h)
	}
}

func scope(s *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return s
	}
	return Find(s, selector)
}

// TextOf renders the text content of a selection's first node with runs
// of whitespace collapsed. Nested script and style contents are skipped.
func TextOf(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	root := s.Get(0)
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n != root && (n.Data == "script" || n.Data == "style") {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte(' ')
		}
	}
	walk(root)
	return normalizeSpace(b.String())
}

// blockTags separate their text from the following content.
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "br": true, "tr": true, "td": true,
	"th": true, "h1": true, "h2": true, "h3": true, "h4": true, "section": true,
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
