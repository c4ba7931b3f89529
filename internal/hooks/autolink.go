package hooks

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"mvdan.cc/xurls/v2"
)

const (
	labelHead = 15
	labelTail = 15
)

var (
	urlRegex    = xurls.Relaxed()
	schemeRegex = xurls.Strict()
	emailGroup  = urlRegex.SubexpIndex("relaxedEmail")
)

// AutoLink wraps bare URLs in the text of an HTML fragment in anchors that
// open in a new tab. Text already inside an anchor is left alone. Input
// that cannot be tokenized is returned unchanged.
func AutoLink(fragment string) string {
	if fragment == "" || !urlRegex.MatchString(fragment) {
		return fragment
	}

	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(fragment))
	anchorDepth := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return fragment
			}
			return out.String()
		}

		// TagName lowercases the buffer in place, so copy first.
		raw := append([]byte(nil), z.Raw()...)
		switch tt {
		case html.StartTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.A {
				anchorDepth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.A && anchorDepth > 0 {
				anchorDepth--
			}
		case html.TextToken:
			if anchorDepth == 0 {
				out.WriteString(linkText(html.UnescapeString(string(raw)), string(raw)))
				continue
			}
		}
		out.Write(raw)
	}
}

// linkText returns text with its URLs wrapped, or raw when it has none.
func linkText(text, raw string) string {
	matches := urlRegex.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return raw
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		url := text[start:end]
		isEmail := emailGroup >= 0 && m[2*emailGroup] >= 0

		b.WriteString(html.EscapeString(text[last:start]))
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(hrefFor(url, isEmail)))
		b.WriteString(`" target="_blank">`)
		b.WriteString(html.EscapeString(truncateLabel(url)))
		b.WriteString(`</a>`)
		last = end
	}
	b.WriteString(html.EscapeString(text[last:]))
	return b.String()
}

// hrefFor adds a scheme to a match that was found without one.
func hrefFor(url string, isEmail bool) string {
	if isEmail {
		return "mailto:" + url
	}
	if loc := schemeRegex.FindStringIndex(url); loc != nil && loc[0] == 0 {
		return url
	}
	return "http://" + url
}

// truncateLabel keeps the first and last characters of a long URL.
func truncateLabel(url string) string {
	runes := []rune(url)
	if len(runes) <= labelHead+labelTail {
		return url
	}
	return string(runes[:labelHead]) + "..." + string(runes[len(runes)-labelTail:])
}
