// Package sanitize removes HTML the model sometimes emits despite being
// asked for plain Markdown.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var tagPattern = regexp.MustCompile(`(?i)</?[a-z][a-z0-9-]*(\s[^<>]*)?/?>`)

// StripHTML unwraps HTML elements and keeps their text. Script, style and
// iframe content is dropped. Text with no tags is returned unchanged.
func StripHTML(text string) string {
	if !tagPattern.MatchString(text) {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	doc.Find("script, style, iframe, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	doc.Find("br").Each(func(i int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find("td, th").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	doc.Find("p, div, tr, li, summary, h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return strings.TrimSpace(doc.Find("body").Text())
}
