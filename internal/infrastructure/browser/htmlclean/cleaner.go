package htmlclean

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const truncationMarker = "\n<!-- truncated -->"

type Config struct {
	TagsToRemove  []string
	AttrsToRemove []string
	// MaxOutputSize of zero keeps the whole document.
	MaxOutputSize int
}

var DefaultConfig = Config{
	TagsToRemove: []string{
		"script", "style", "noscript", "svg", "iframe",
		"link", "meta", "head", "title", "template",
	},
	AttrsToRemove: []string{
		"style", "srcset", "sizes", "loading", "decoding", "fetchpriority", "tabindex",
	},
	MaxOutputSize: 20_000,
}

// Clean returns the <body> of rawHTML without comments, non-content tags and
// presentation or scripting attributes.
func Clean(rawHTML string, cfg Config) (string, error) {
	body, err := parseBody(rawHTML)
	if err != nil {
		return "", err
	}

	cleanNode(body, cfg)

	var sb strings.Builder
	if err := html.Render(&sb, body); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return truncate(sb.String(), cfg.MaxOutputSize), nil
}

// Text returns the visible text of the body with whitespace collapsed. Block
// level elements start a new line.
func Text(rawHTML string, cfg Config) (string, error) {
	body, err := parseBody(rawHTML)
	if err != nil {
		return "", err
	}
	cleanNode(body, cfg)

	var sb strings.Builder
	collectText(body, &sb)

	lines := strings.Split(sb.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return truncate(strings.Join(kept, "\n"), cfg.MaxOutputSize), nil
}

func parseBody(rawHTML string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	body := findBodyNode(doc)
	if body == nil {
		return nil, fmt.Errorf("no <body> in document")
	}
	return body, nil
}

func findBodyNode(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBodyNode(c); b != nil {
			return b
		}
	}
	return nil
}

func cleanNode(n *html.Node, cfg Config) {
	if n.Type == html.CommentNode {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	if isOneOf(n.Data, cfg.TagsToRemove...) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}

	n.Attr = filterAttributes(n.Attr, cfg)

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c, cfg)
		c = next
	}
}

func filterAttributes(attrs []html.Attribute, cfg Config) []html.Attribute {
	var kept []html.Attribute
	for _, attr := range attrs {
		if isOneOf(attr.Key, cfg.AttrsToRemove...) {
			continue
		}
		if strings.HasPrefix(attr.Key, "data-") || strings.HasPrefix(attr.Key, "aria-") || strings.HasPrefix(attr.Key, "on") {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "header": true, "footer": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "table": true,
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if block {
		sb.WriteByte('\n')
	}
}

func truncate(s string, maxSize int) string {
	if maxSize <= 0 || len(s) <= maxSize {
		return s
	}
	n := maxSize
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + truncationMarker
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
