package glasir

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEK NAVIGATION PARSER
// ══════════════════════════════════════════════════════════════════════════════

var reWeekOffset = regexp.MustCompile(`v=(-?\d+)`)

// ParseAvailableOffsets extracts the set of week offsets reachable through
// the page's navigation links, sorted ascending. An empty slice means no
// navigation was found.
func ParseAvailableOffsets(pageHTML string) []int {
	if pageHTML == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	seen := make(map[int]bool)
	doc.Find(`a[onclick*="v="]`).Each(func(_ int, link *goquery.Selection) {
		onclick, _ := link.Attr("onclick")
		m := reWeekOffset.FindStringSubmatch(onclick)
		if m == nil {
			return
		}
		if offset, err := strconv.Atoi(m[1]); err == nil {
			seen[offset] = true
		}
	})

	offsets := make([]int, 0, len(seen))
	for offset := range seen {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)
	return offsets
}
