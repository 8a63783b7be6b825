package fetch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Elements whose subtrees carry no article text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"form":     true,
	"iframe":   true,
}

// Elements that end a line when they close, so headings and paragraphs
// stay separated in the extracted text.
var blockElements = map[string]bool{
	"p":  true, "div": true, "li": true, "tr": true, "br": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
}

var (
	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// extractText tokenizes the HTML document and returns its readable text.
// The tokenizer decodes entities; scripts, styles, and chrome elements
// are dropped wholesale.
func extractText(doc string) string {
	tok := html.NewTokenizer(strings.NewReader(doc))

	var out strings.Builder
	skipDepth := 0
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return collapseWhitespace(out.String())
		case html.StartTagToken:
			name, _ := tok.TagName()
			if skippedElements[string(name)] {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			tag := string(name)
			if skippedElements[tag] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth == 0 && blockElements[tag] {
				out.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := tok.TagName()
			if skipDepth == 0 && blockElements[string(name)] {
				out.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tok.Text()))
			if text == "" {
				continue
			}
			out.WriteString(text)
			out.WriteByte(' ')
		}
	}
}

func collapseWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}
	s = strings.Join(out, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
