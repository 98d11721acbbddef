package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/sublatesublate-design/legal-database/models"
)

const nationalPrefix = "中华人民共和国"

const dateNumeral = `[0-9０-９零〇一二三四五六七八九十]{1,4}`

var (
	datePattern          = regexp.MustCompile(`(` + dateNumeral + `)年(` + dateNumeral + `)月(` + dateNumeral + `)日`)
	effectiveDatePattern = regexp.MustCompile(`自(` + dateNumeral + `)年(` + dateNumeral + `)月(` + dateNumeral + `)日起施行`)

	amendmentDecisionPattern = regexp.MustCompile(`关于修改《(.+?)》的决定`)
	amendmentBillPattern     = regexp.MustCompile(`^(.+?)修正案(?:[（(].*[）)])?$`)
	interpretationPattern    = regexp.MustCompile(`《(.+?)》`)
)

// Relation links a document to the law it amends or interprets
type Relation struct {
	Type   models.RevisionType
	Target string // title of the related law as written
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "《")
	s = strings.TrimSuffix(s, "》")
	return strings.Join(strings.Fields(s), "")
}

func shortTitle(title string) string {
	short := strings.TrimPrefix(title, nationalPrefix)
	if short == title || short == "" {
		return ""
	}
	return short
}

// DetectRelations reads amendment and interpretation targets from a title
func DetectRelations(title string) []Relation {
	if m := amendmentDecisionPattern.FindStringSubmatch(title); m != nil {
		return []Relation{{Type: models.RevisionAmendment, Target: m[1]}}
	}
	if m := amendmentBillPattern.FindStringSubmatch(title); m != nil {
		return []Relation{{Type: models.RevisionAmendment, Target: m[1]}}
	}
	if strings.Contains(title, "解释") {
		var rels []Relation
		for _, m := range interpretationPattern.FindAllStringSubmatch(title, -1) {
			rels = append(rels, Relation{Type: models.RevisionInterpretation, Target: m[1]})
		}
		return rels
	}
	return nil
}

// findPublishDate returns the first date written in the document header
func findPublishDate(header []string) *time.Time {
	for _, line := range header {
		if m := datePattern.FindStringSubmatch(line); m != nil {
			if t, ok := buildDate(m[1], m[2], m[3]); ok {
				return &t
			}
		}
	}
	return nil
}

func findEffectiveDate(text string) *time.Time {
	if m := effectiveDatePattern.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3]); ok {
			return &t
		}
	}
	return nil
}

func buildDate(y, m, d string) (time.Time, bool) {
	year, err := ParseNumber(y)
	if err != nil || year < 1949 {
		return time.Time{}, false
	}
	month, err := ParseNumber(m)
	if err != nil || month > 12 {
		return time.Time{}, false
	}
	day, err := ParseNumber(d)
	if err != nil || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}
