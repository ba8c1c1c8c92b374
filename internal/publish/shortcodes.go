package publish

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Internal article markup uses a small shortcode vocabulary:
//
//	[heading]...[/heading]  section heading
//	[sub]...[/sub]          sub-heading
//	[list]a|b|c[/list]      bullet list, pipe-separated items
//
// Everything else is paragraph text, blocks separated by blank lines.

var (
	headingRe = regexp.MustCompile(`^\[heading\](.*)\[/heading\]$`)
	subRe     = regexp.MustCompile(`^\[sub\](.*)\[/sub\]$`)
	listRe    = regexp.MustCompile(`^\[list\](.*)\[/list\]$`)
)

// ShortcodesToHTML converts internal markup into the HTML a CMS expects.
func ShortcodesToHTML(body string) string {
	blocks := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")
	var out []string
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		switch {
		case headingRe.MatchString(block):
			m := headingRe.FindStringSubmatch(block)
			out = append(out, fmt.Sprintf("<h2>%s</h2>", html.EscapeString(strings.TrimSpace(m[1]))))
		case subRe.MatchString(block):
			m := subRe.FindStringSubmatch(block)
			out = append(out, fmt.Sprintf("<h3>%s</h3>", html.EscapeString(strings.TrimSpace(m[1]))))
		case listRe.MatchString(block):
			m := listRe.FindStringSubmatch(block)
			var items []string
			for _, item := range strings.Split(m[1], "|") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, "<li>"+html.EscapeString(item)+"</li>")
				}
			}
			out = append(out, "<ul>"+strings.Join(items, "")+"</ul>")
		default:
			para := html.EscapeString(block)
			para = strings.ReplaceAll(para, "\n", "<br>")
			out = append(out, "<p>"+para+"</p>")
		}
	}
	return strings.Join(out, "\n")
}

// StripShortcodes flattens internal markup to plain text for channels that
// take no formatting, e.g. social captions.
func StripShortcodes(body string) string {
	blocks := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")
	var out []string
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		switch {
		case headingRe.MatchString(block):
			out = append(out, strings.TrimSpace(headingRe.FindStringSubmatch(block)[1]))
		case subRe.MatchString(block):
			out = append(out, strings.TrimSpace(subRe.FindStringSubmatch(block)[1]))
		case listRe.MatchString(block):
			var items []string
			for _, item := range strings.Split(listRe.FindStringSubmatch(block)[1], "|") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, "- "+item)
				}
			}
			out = append(out, strings.Join(items, "\n"))
		default:
			out = append(out, block)
		}
	}
	return strings.Join(out, "\n\n")
}
