package glasir

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOMEWORK NOTE PARSER
// ══════════════════════════════════════════════════════════════════════════════

var (
	reSpaceBeforeNewline = regexp.MustCompile(` +\n`)
	reSpaceAfterNewline  = regexp.MustCompile(`\n +`)
)

const homeworkHeader = "Heimaarbeiði"

// ParseHomework extracts {lesson_id -> homework markdown} from a note page.
// The lesson id comes from the hidden LektionsID input; the text is the
// paragraph following the bold homework header, rendered with <b> as **..**,
// <i> as *..* and <br> as newlines. Returns an empty map when the page has
// no note.
func ParseHomework(pageHTML string) map[string]string {
	result := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return result
	}

	lessonID, _ := doc.Find(`input[type="hidden"][id^="LektionsID"]`).First().Attr("value")
	if lessonID == "" {
		return result
	}

	header := doc.Find("b").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == homeworkHeader
	}).First()
	if header.Length() == 0 {
		// Lessons commonly have the note page but no homework section.
		return result
	}

	paragraph := header.ParentsFiltered("p").First()
	if paragraph.Length() == 0 {
		return result
	}

	text := renderNoteParagraph(paragraph.Get(0))
	text = reSpaceBeforeNewline.ReplaceAllString(text, "\n")
	text = reSpaceAfterNewline.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)

	if text != "" {
		result[lessonID] = text
	}
	return result
}

// renderNoteParagraph walks the paragraph's children, skipping the homework
// header itself and the first <br> right after it.
func renderNoteParagraph(p *html.Node) string {
	var b strings.Builder
	headerSkipped := false
	firstBrSkipped := false

	for child := p.FirstChild; child != nil; child = child.NextSibling {
		if !headerSkipped && child.Type == html.ElementNode && child.Data == "b" &&
			strings.TrimSpace(nodeText(child)) == homeworkHeader {
			headerSkipped = true
			continue
		}
		if headerSkipped && !firstBrSkipped && child.Type == html.ElementNode && child.Data == "br" {
			firstBrSkipped = true
			continue
		}
		renderNode(&b, child)
	}
	return b.String()
}

// renderNode converts one HTML node to markdown-like text.
func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "br":
			b.WriteString("\n")
		case "b":
			if inner := strings.TrimSpace(renderChildren(n)); inner != "" {
				b.WriteString("**" + inner + "**")
			}
		case "i":
			if inner := strings.TrimSpace(renderChildren(n)); inner != "" {
				b.WriteString("*" + inner + "*")
			}
		default:
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				renderNode(b, child)
			}
		}
	}
}

func renderChildren(n *html.Node) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		renderNode(&b, child)
	}
	return b.String()
}

// nodeText returns the concatenated text of a node's subtree.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
