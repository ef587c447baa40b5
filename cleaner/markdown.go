// Package cleaner converts scraped HTML fragments, such as listing
// descriptions, into Markdown.
package cleaner

import (
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var (
	convOnce sync.Once
	conv     *converter.Converter
)

// markdownConverter returns the shared converter. It is safe for
// concurrent use.
//
//   - base plugin: drops script, style, iframe and comments.
//   - commonmark plugin: headings, lists, links and emphasis.
//   - table plugin: keeps tables, with single-space cell padding.
func markdownConverter() *converter.Converter {
	convOnce.Do(func() {
		conv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		)
	})
	return conv
}

// ToMarkdown converts an HTML fragment to Markdown. Relative links and
// images are resolved against domain when it is non-empty.
func ToMarkdown(htmlContent, domain string) (string, error) {
	var (
		md  string
		err error
	)
	if domain != "" {
		md, err = markdownConverter().ConvertString(htmlContent, converter.WithDomain(domain))
	} else {
		md, err = markdownConverter().ConvertString(htmlContent)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
