// Package render turns stored chapter content into reader output. Content is
// TipTap/ProseMirror JSON; anything that does not parse as a document is
// treated as plain text.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"unicode"
)

// Node is a node in the ProseMirror document tree
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is a text mark (formatting)
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes content as a document. ok is false for plain text.
func Parse(content string) (doc Node, ok bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return Node{}, false
	}
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil || doc.Type != "doc" {
		return Node{}, false
	}
	return doc, true
}

// HTML renders content for the reader.
func HTML(content string) string {
	if doc, ok := Parse(content); ok {
		return NodeHTML(doc)
	}
	var b strings.Builder
	for _, para := range splitParagraphs(content) {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(para))
	}
	return b.String()
}

// NodeHTML renders a parsed node and its children.
func NodeHTML(node Node) string {
	switch node.Type {
	case "doc":
		return childrenHTML(node)
	case "paragraph":
		if indent, ok := node.Attrs["indent"].(bool); ok && !indent {
			return fmt.Sprintf("<p>%s</p>\n", childrenHTML(node))
		}
		return fmt.Sprintf("<p class=\"indent\">%s</p>\n", childrenHTML(node))
	case "heading":
		level := 1
		if lvl, ok := node.Attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, childrenHTML(node), level)
	case "bulletList":
		return fmt.Sprintf("<ul>\n%s</ul>\n", childrenHTML(node))
	case "orderedList":
		return fmt.Sprintf("<ol>\n%s</ol>\n", childrenHTML(node))
	case "listItem":
		return fmt.Sprintf("<li>%s</li>\n", childrenHTML(node))
	case "blockquote":
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", childrenHTML(node))
	case "codeBlock":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(plainText(node)))
	case "loreNode":
		title := attrString(node.Attrs, "title", "Unknown")
		category := attrString(node.Attrs, "category", "item")
		return fmt.Sprintf("<aside class=\"lore-card\" data-category=\"%s\"><span class=\"lore-category\">%s</span> %s</aside>\n",
			html.EscapeString(category), html.EscapeString(category), html.EscapeString(title))
	case "text":
		return textWithMarks(node.Text, node.Marks)
	case "hardBreak":
		return "<br>"
	case "horizontalRule":
		return "<hr>\n"
	default:
		return childrenHTML(node)
	}
}

func childrenHTML(node Node) string {
	var b strings.Builder
	for _, child := range node.Content {
		b.WriteString(NodeHTML(child))
	}
	return b.String()
}

// textWithMarks applies marks from outside in
func textWithMarks(text string, marks []Mark) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)
	for i := len(marks) - 1; i >= 0; i-- {
		switch marks[i].Type {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "code":
			out = "<code>" + out + "</code>"
		case "strike":
			out = "<s>" + out + "</s>"
		case "underline":
			out = "<u>" + out + "</u>"
		case "link":
			href := attrString(marks[i].Attrs, "href", "")
			if !safeHref(href) {
				continue
			}
			out = fmt.Sprintf(`<a href="%s" rel="noopener nofollow">%s</a>`, html.EscapeString(href), out)
		}
	}
	return out
}

func safeHref(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:")
}

func attrString(attrs map[string]any, key, fallback string) string {
	if v, ok := attrs[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// PlainText flattens content to text with one line per block.
func PlainText(content string) string {
	if doc, ok := Parse(content); ok {
		return strings.TrimSpace(plainText(doc))
	}
	return strings.TrimSpace(content)
}

func plainText(node Node) string {
	switch node.Type {
	case "text":
		return node.Text
	case "hardBreak":
		return "\n"
	case "loreNode":
		return attrString(node.Attrs, "title", "") + "\n"
	}
	var b strings.Builder
	for _, child := range node.Content {
		b.WriteString(plainText(child))
	}
	switch node.Type {
	case "paragraph", "heading", "listItem", "codeBlock", "blockquote":
		b.WriteString("\n")
	}
	return b.String()
}

// WordCount counts space-separated words, counting each Han, Hiragana,
// Katakana or Hangul character as a word of its own.
func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			count++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' || r == '-':
			if !inWord {
				count++
				inWord = true
			}
		default:
			inWord = false
		}
	}
	return count
}

// ContentWordCount is WordCount over the plain text of stored content.
func ContentWordCount(content string) int {
	return WordCount(PlainText(content))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func splitParagraphs(content string) []string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
