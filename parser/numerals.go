package parser

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var chineseDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var chineseUnits = map[rune]int{
	'十': 10, '百': 100, '千': 1000,
}

// ParseNumber converts a Chinese, arabic or full-width numeral to an integer.
// Positional forms such as "二〇二〇" are read digit by digit.
func ParseNumber(s string) (int, error) {
	s = strings.TrimSpace(width.Narrow.String(s))
	if s == "" {
		return 0, fmt.Errorf("empty numeral")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("numeral %q is not positive", s)
		}
		return n, nil
	}

	if !strings.ContainsAny(s, "十百千万") {
		return parsePositional(s)
	}

	total, section, digit := 0, 0, -1
	lastUnit := 10000
	for _, r := range s {
		if d, ok := chineseDigits[r]; ok {
			if digit > 0 {
				return 0, fmt.Errorf("numeral %q has adjacent digits", s)
			}
			digit = d
			continue
		}
		if r == '万' {
			if digit > 0 {
				section += digit
			}
			if section == 0 {
				return 0, fmt.Errorf("numeral %q has a bare 万", s)
			}
			total += section * 10000
			section, digit, lastUnit = 0, -1, 10000
			continue
		}
		unit, ok := chineseUnits[r]
		if !ok {
			return 0, fmt.Errorf("numeral %q contains %q", s, r)
		}
		if unit >= lastUnit {
			return 0, fmt.Errorf("numeral %q has misordered units", s)
		}
		switch {
		case digit > 0:
			section += digit * unit
		case digit < 0 && unit == 10:
			// "十二" is twelve
			section += unit
		default:
			return 0, fmt.Errorf("numeral %q has a unit without a digit", s)
		}
		digit, lastUnit = -1, unit
	}
	if digit > 0 {
		section += digit
	}

	n := total + section
	if n <= 0 {
		return 0, fmt.Errorf("numeral %q is not positive", s)
	}
	return n, nil
}

func parsePositional(s string) (int, error) {
	n := 0
	for _, r := range s {
		d, ok := chineseDigits[r]
		if !ok {
			return 0, fmt.Errorf("numeral %q contains %q", s, r)
		}
		n = n*10 + d
	}
	if n <= 0 {
		return 0, fmt.Errorf("numeral %q is not positive", s)
	}
	return n, nil
}
