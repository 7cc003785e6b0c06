package search

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var onionLinkRe = regexp.MustCompile(`https?://[a-z2-7]{16,56}\.onion\S*`)

// ParseResults extracts onion links and their anchor text from an engine
// results page.
func ParseResults(body io.Reader) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link := onionLinkRe.FindString(href)
		if link == "" {
			return
		}
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = link
		}
		results = append(results, Result{Link: strings.TrimRight(link, `"'>`), Title: title})
	})
	return results, nil
}

// HTMLToText strips markup from a page and returns readable text with
// collapsed whitespace. Script and style contents are dropped.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	text := doc.Text()
	lines := strings.Fields(text)
	return strings.Join(lines, " "), nil
}
