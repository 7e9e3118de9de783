package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkMap indexes the edit-link element id of every row matched by selector, keyed by
// both the row's ISO code and its label. Rows are identified by their ":code" cell.
func LinkMap(html string, selector string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	links := make(map[string]string)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		if !ok || !strings.HasSuffix(id, ":code") {
			return
		}
		editID := strings.TrimSuffix(id, ":code") + ":editLink"

		if code := strings.TrimSpace(s.Text()); code != "" {
			links[code] = editID
		}
		nameID := strings.TrimSuffix(id, ":code") + ":name"
		if name := strings.TrimSpace(doc.Find(fmt.Sprintf(`[id="%s"]`, nameID)).First().Text()); name != "" {
			links[name] = editID
		}
	})
	return links, nil
}
