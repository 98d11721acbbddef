package parser

import (
	"regexp"
	"strings"

	"github.com/sublatesublate-design/legal-database/models"
)

// LineKind classifies one line of a legal document
type LineKind int

const (
	PlainText LineKind = iota
	PartHeading
	SubPartHeading
	ChapterHeading
	SectionHeading
	ArticleHeading
)

func (k LineKind) String() string {
	switch k {
	case PartHeading:
		return "part"
	case SubPartHeading:
		return "subpart"
	case ChapterHeading:
		return "chapter"
	case SectionHeading:
		return "section"
	case ArticleHeading:
		return "article"
	default:
		return "text"
	}
}

// depth is the slot of a container heading in the open-label stack
func (k LineKind) depth() int {
	return int(k) - 1
}

func (k LineKind) level() models.HeadingLevel {
	return [...]models.HeadingLevel{
		models.LevelPart, models.LevelSubPart, models.LevelChapter, models.LevelSection,
	}[k.depth()]
}

// Line is a classified document line
type Line struct {
	Kind     LineKind
	Raw      string
	Marker   string // "第一章", "第三条之一", "第五条至第七条"
	Text     string // heading title, or the first line of an article body
	Base     int
	Suffix   int
	RangeEnd int
	Attached bool  // body follows the marker with no separator
	Err      error // heading recognised but its number did not parse
}

// Index returns the ordering index of an article line
func (l Line) Index() float64 {
	return OrderingIndex(l.Base, l.Suffix)
}

var (
	headingPattern = regexp.MustCompile(`^(第(` + numeralClass + `)(分编|编|章|节))(?:[\s\p{Zs}]+(.*))?$`)
	articlePattern = regexp.MustCompile(`^(第(` + numeralClass + `)条(?:之(` + numeralClass + `)|[-－](` + numeralClass + `))?(?:至第(` + numeralClass + `)条)?)([\s\p{Zs}]*)(.*)$`)
)

// referencePrefixes open prose that cites an article rather than starting one
var referencePrefixes = []string{"第", "规定", "之", "所", "的", "中", "和", "或", "及", "、", "，", "。", "；", "（"}

// citesArticle reports whether an attached body reads as a cross-reference
// such as "第十条规定的情形" or "第五条第二款".
func citesArticle(body string) bool {
	for _, p := range referencePrefixes {
		if strings.HasPrefix(body, p) {
			return true
		}
	}
	return false
}

var headingKinds = map[string]LineKind{
	"编":  PartHeading,
	"分编": SubPartHeading,
	"章":  ChapterHeading,
	"节":  SectionHeading,
}

// Classify matches a trimmed line against the heading patterns, most
// specific first.
func Classify(raw string) Line {
	line := Line{Kind: PlainText, Raw: raw}

	if m := articlePattern.FindStringSubmatch(raw); m != nil {
		body := strings.TrimSpace(m[7])
		line.Attached = m[6] == "" && body != ""
		if line.Attached && citesArticle(body) {
			return line
		}
		line.Kind = ArticleHeading
		line.Marker = m[1]
		line.Text = body
		line.Base, line.Err = ParseNumber(m[2])
		if line.Err != nil {
			return line
		}
		if suffix := m[3] + m[4]; suffix != "" {
			line.Suffix, line.Err = ParseNumber(suffix)
			if line.Err == nil && line.Suffix >= 100 {
				line.Err = errSuffixTooLarge
			}
			if line.Err != nil {
				return line
			}
		}
		if m[5] != "" {
			line.RangeEnd, line.Err = ParseNumber(m[5])
			if line.Err == nil && line.RangeEnd <= line.Base {
				line.Err = errBadRange
			}
		}
		return line
	}

	if m := headingPattern.FindStringSubmatch(raw); m != nil {
		line.Kind = headingKinds[m[3]]
		line.Marker = m[1]
		line.Text = strings.TrimSpace(m[4])
		line.Base, line.Err = ParseNumber(m[2])
	}

	return line
}
