package feed

import (
	"bytes"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

var (
	errEmptyHTML         = errors.New("empty HTML content")
	errFailedToParseHTML = errors.New("failed to parse HTML for PDF link")
)

// noticeWords mark anchor text that refers to the notice document itself.
var noticeWords = []string{"download", "pdf", "view", "notice", "gazette", "document", "تحميل"}

// FindPDFLink locates the most likely PDF document link in an HTML page and
// returns it resolved against baseURL.
//
// Candidates are ranked:
//  1. href ends in .pdf and the anchor text mentions the document (download, pdf, ...)
//  2. href ends in .pdf, or an embedded viewer (iframe/embed/object) points at a PDF
//  3. anchor text mentions the document
func FindPDFLink(baseURL string, html []byte) (string, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return "", errEmptyHTML
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", errors.Join(errFailedToParseHTML, err)
	}

	var high, med, low []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		pdfLike := looksLikePDFPath(href)
		textLike := mentionsNotice(sel.Text()) || mentionsNotice(sel.AttrOr("title", ""))

		switch {
		case pdfLike && textLike:
			high = append(high, href)
		case pdfLike:
			med = append(med, href)
		case textLike:
			low = append(low, href)
		}
	})

	doc.Find("iframe[src], embed[src], object[data]").Each(func(_ int, sel *goquery.Selection) {
		src := strings.TrimSpace(sel.AttrOr("src", sel.AttrOr("data", "")))
		if src != "" && looksLikePDFPath(src) {
			med = append(med, src)
		}
	})

	var best string
	switch {
	case len(high) > 0:
		best = high[0]
	case len(med) > 0:
		best = med[0]
	case len(low) > 0:
		best = low[0]
	default:
		return "", errNoPDFLink
	}

	return resolveLink(baseURL, best), nil
}

func mentionsNotice(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, w := range noticeWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// LandingTitle returns the readable title of an HTML landing page, or "".
func LandingTitle(pageURL string, html []byte) string {
	var parsed *url.URL
	if u, err := url.Parse(pageURL); err == nil {
		parsed = u
	}

	article, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Title)
}
