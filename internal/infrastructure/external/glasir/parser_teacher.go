package glasir

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER DIRECTORY PARSER
// ══════════════════════════════════════════════════════════════════════════════

var (
	reTeacherWithLink = regexp.MustCompile(`([^<>]+?)\s*\(\s*<a[^>]*?>([A-Z]{2,4})</a>\s*\)`)
	reTeacherNoLink   = regexp.MustCompile(`([^<>]+?)\s*\(\s*([A-Z]{2,4})\s*\)`)
)

// ParseTeacherMap extracts {initials -> full name} from the teacher
// directory page. The primary source is a <select> of options (skipping the
// "-1" placeholder); if that yields nothing, two regex fallbacks pick names
// of the form "Full Name (INIT)" out of the raw HTML.
func ParseTeacherMap(html string) map[string]string {
	teacherMap := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("select").First().Find("option").Each(func(_ int, option *goquery.Selection) {
			initials, _ := option.Attr("value")
			fullName := strings.TrimSpace(option.Text())
			if initials != "" && initials != "-1" && fullName != "" {
				teacherMap[initials] = fullName
			}
		})
	}

	if len(teacherMap) == 0 {
		for _, pattern := range []*regexp.Regexp{reTeacherWithLink, reTeacherNoLink} {
			for _, m := range pattern.FindAllStringSubmatch(html, -1) {
				fullName := strings.TrimSpace(m[1])
				initials := strings.TrimSpace(m[2])
				if initials == "" || fullName == "" {
					continue
				}
				if _, seen := teacherMap[initials]; !seen {
					teacherMap[initials] = fullName
				}
			}
		}
	}

	return teacherMap
}
