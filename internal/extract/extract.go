// Package extract pulls anchor references out of HTML markup.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse returns the href of every anchor carrying the attribute, in document
// order. An empty href is returned as "". Parser failures, including panics,
// surface as an error and no links.
func Parse(markup string) (links []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			links = nil
			err = fmt.Errorf("parse markup: panic: %v", rec)
		}
	}()

	// Scripts never run here, so noscript content is parsed as markup.
	root, err := html.ParseWithOptions(strings.NewReader(markup), html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if ok {
			links = append(links, href)
		}
	})
	return links, nil
}

// Links is Parse with failures folded into an empty result.
func Links(markup string) []string {
	links, err := Parse(markup)
	if err != nil {
		return nil
	}
	return links
}
