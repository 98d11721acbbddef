package parser

import (
	"regexp"
	"sort"
	"strings"
)

// Citation is a reference to a law article found in free text
type Citation struct {
	Raw     string `json:"raw"`
	LawName string `json:"law_name"`
	Article string `json:"article"`
	Quote   string `json:"quote,omitempty"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

const citedNumeral = `[零〇一二两三四五六七八九十百千万0-9０-９]+`

var (
	bracketedCitation = regexp.MustCompile(`《([^》]+)》(第` + citedNumeral + `条(?:之[一二三四五六七八九十]+)?)`)
	bareCitation      = regexp.MustCompile(`(\p{Han}{2,10}?(?:法|典|条例|规定|办法))(第` + citedNumeral + `条(?:之[一二三四五六七八九十]+)?)`)
	quoteAfter        = regexp.MustCompile(`^[\s，,：:]*(?:规定|明确规定|指出)?[\s，,：:]*[“"「『]([^”"」』]+)[”"」』]`)
)

// Lead-in verbs that the bare pattern tends to swallow into the law name.
var citationLeadIns = []string{"根据", "参见", "另见", "详见", "依据", "依照", "按照", "违反", "适用", "参照", "对照", "依", "据", "按", "和", "及", "与"}

// ExtractCitations finds every 《X》第N条 and bare X法第N条 reference in
// document order, along with a quoted claim when one follows directly.
func ExtractCitations(text string) []Citation {
	var out []Citation
	var taken [][2]int

	for _, m := range bracketedCitation.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, newCitation(text, m, text[m[2]:m[3]]))
		taken = append(taken, [2]int{m[0], m[1]})
	}

	for _, m := range bareCitation.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(taken, m[0], m[1]) {
			continue
		}
		name := trimLeadIns(text[m[2]:m[3]])
		if len([]rune(name)) < 2 {
			continue
		}
		out = append(out, newCitation(text, m, name))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func newCitation(text string, m []int, name string) Citation {
	c := Citation{
		Raw:     text[m[0]:m[1]],
		LawName: name,
		Article: text[m[4]:m[5]],
		Start:   m[0],
		End:     m[1],
	}
	if q := quoteAfter.FindStringSubmatch(text[m[1]:]); q != nil {
		c.Quote = strings.TrimSpace(q[1])
	}
	return c
}

func trimLeadIns(name string) string {
	for changed := true; changed; {
		changed = false
		for _, lead := range citationLeadIns {
			if strings.HasPrefix(name, lead) && len([]rune(name))-len([]rune(lead)) >= 2 {
				name = strings.TrimPrefix(name, lead)
				changed = true
			}
		}
	}
	return name
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}
