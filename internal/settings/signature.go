package settings

import (
	"html"
	"strings"
)

var linkPrefixes = []string{"http://", "https://", "t.me/", "tg://"}

// ParseSignature expands the "label # url" shorthand into an HTML link. Text without the
// shorthand, or whose url part does not look like a link, is returned unchanged so operators can
// still supply their own HTML.
func ParseSignature(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.LastIndex(text, " # ")
	if idx < 0 {
		return text
	}
	label := strings.TrimSpace(text[:idx])
	url := strings.TrimSpace(text[idx+len(" # "):])
	if label == "" || url == "" || !looksLikeLink(url) {
		return text
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "tg://") {
		url = "https://" + url
	}
	return `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(label) + `</a>`
}

func looksLikeLink(url string) bool {
	if strings.Contains(url, ".") {
		return true
	}
	for _, p := range linkPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
