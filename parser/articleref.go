package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sublatesublate-design/legal-database/models"

	"golang.org/x/text/width"
)

const numeralClass = `[零〇一二两三四五六七八九十百千万0-9０-９]+`

var articleRefPattern = regexp.MustCompile(`^第?(` + numeralClass + `)条?(?:(?:之|-|－|—)(` + numeralClass + `))?条?$`)

// OrderingIndex places a suffixed article right after its base number:
// 第三条 → 3, 第三条之一 → 3.01, 第三条之二 → 3.02.
func OrderingIndex(base, suffix int) float64 {
	return float64(base) + float64(suffix)/100
}

// ParseArticleRef normalizes a caller-supplied article number such as
// "第1023条", "一千零二十三", "第三条之一" or "3-1" to an ordering index.
func ParseArticleRef(s string) (float64, error) {
	cleaned := strings.Join(strings.Fields(width.Narrow.String(s)), "")
	m := articleRefPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, fmt.Errorf("%w: article number %q", models.ErrInvalidInput, s)
	}

	base, err := ParseNumber(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: article number %q: %v", models.ErrInvalidInput, s, err)
	}

	suffix := 0
	if m[2] != "" {
		suffix, err = ParseNumber(m[2])
		if err != nil || suffix >= 100 {
			return 0, fmt.Errorf("%w: article suffix %q", models.ErrInvalidInput, s)
		}
	}

	return OrderingIndex(base, suffix), nil
}
