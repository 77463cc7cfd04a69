// Package evidence collects DOM signals from an HTML snapshot of the page
// under classification.
package evidence

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/cartsignal/checkout-agent/internal/detect"
	"github.com/cartsignal/checkout-agent/internal/models"
)

// maxButtonMentions caps the retained interactive-element labels.
const maxButtonMentions = 10

// Collect parses an HTML snapshot and gathers checkout signals: which text
// heuristics matched the visible page text, up to 10 checkout-intent button
// labels, and the form count. Collection is best-effort; a snapshot that
// cannot be parsed yields the zero bundle, never an error.
func Collect(snapshot string) models.Signals {
	doc, err := html.Parse(strings.NewReader(snapshot))
	if err != nil || doc == nil {
		return models.Signals{}
	}

	var sig models.Signals

	text := strings.ToLower(visibleText(doc))
	for _, re := range detect.TextHeuristics {
		if re.MatchString(text) {
			sig.TextMentions = append(sig.TextMentions, re.String())
		}
	}

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch {
		case n.Data == "form":
			sig.FormsCount++
		case interactive(n):
			if len(sig.ButtonMentions) >= maxButtonMentions {
				return
			}
			label := strings.ToLower(strings.TrimSpace(elementLabel(n)))
			if label == "" {
				return
			}
			if detect.ButtonIntent.MatchString(label) {
				sig.ButtonMentions = append(sig.ButtonMentions, label)
			}
		}
	})

	return sig
}

// interactive matches the elements the classifier treats as actionable:
// buttons, explicit button roles, submit inputs, and links.
func interactive(n *html.Node) bool {
	switch n.Data {
	case "button", "a":
		return true
	case "input":
		return strings.EqualFold(attr(n, "type"), "submit")
	}
	return attr(n, "role") == "button"
}

// elementLabel prefers the element's text content, falling back to its value
// attribute (submit inputs carry their label there).
func elementLabel(n *html.Node) string {
	if text := visibleText(n); strings.TrimSpace(text) != "" {
		return text
	}
	return attr(n, "value")
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// visibleText concatenates the text nodes under n, skipping content the
// browser never renders.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return b.String()
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
