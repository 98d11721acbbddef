// Package parser turns the plain text of a Chinese legal document into a
// law header, its heading tree and an ordered list of articles.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sublatesublate-design/legal-database/models"
)

var (
	errSuffixTooLarge = errors.New("article suffix out of range")
	errBadRange       = errors.New("article range does not ascend")

	// ErrEmptyDocument is returned when the text has no non-blank lines
	ErrEmptyDocument = errors.New("empty document")
)

// ChapterPathSeparator joins the headings of an article's chapter path
const ChapterPathSeparator = " > "

const maxSegmentRunes = 40

// Options adjusts how a document is parsed
type Options struct {
	// Title overrides the title read from the first line
	Title string
}

// Result is the parsed form of one document
type Result struct {
	Title         string
	ShortTitle    string
	Preamble      string
	PublishDate   *time.Time
	EffectiveDate *time.Time
	Articles      []models.Article
	Structure     models.LawStructure
	Relations     []Relation
	Warnings      []models.ParseWarning
}

// Parse runs the heading state machine over the document. It is a pure
// function of its input: the same text always yields the same articles with
// the same ordering indices. Malformed segments are skipped with a warning.
func Parse(text string, opts Options) (*Result, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, ErrEmptyDocument
	}

	p := &docParser{result: &Result{}, lastIndex: 0}

	start := 0
	title := cleanTitle(opts.Title)
	if first := Classify(lines[0].text); first.Kind == PlainText {
		if title == "" {
			title = cleanTitle(lines[0].text)
			start = 1
		} else if cleanTitle(lines[0].text) == title {
			start = 1
		}
	}
	p.result.Title = title
	p.result.ShortTitle = shortTitle(title)

	for _, l := range lines[start:] {
		p.feed(l)
	}
	p.closeArticle()

	p.result.Preamble = strings.Join(p.preamble, "\n")
	p.result.PublishDate = findPublishDate(p.preamble)
	p.result.EffectiveDate = findEffectiveDate(text)
	p.result.Relations = DetectRelations(title)
	if len(p.result.Articles) == 0 {
		p.warn(0, title, "no articles recognised")
	}

	return p.result, nil
}

type sourceLine struct {
	number int
	text   string
}

func splitLines(text string) []sourceLine {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []sourceLine
	for i, raw := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(raw); t != "" {
			lines = append(lines, sourceLine{number: i + 1, text: t})
		}
	}
	return lines
}

type articleBuilder struct {
	line    int
	head    Line
	labels  [4]*models.StructureNode
	content []string
}

type docParser struct {
	result    *Result
	open      [4]*models.StructureNode
	current   *articleBuilder
	preamble  []string
	lastIndex float64
	skipping  bool

	inTOC    bool
	tocFirst string
}

func (p *docParser) warn(line int, segment, reason string) {
	if utf8.RuneCountInString(segment) > maxSegmentRunes {
		segment = string([]rune(segment)[:maxSegmentRunes]) + "…"
	}
	p.result.Warnings = append(p.result.Warnings, models.ParseWarning{
		Line:    line,
		Segment: segment,
		Reason:  reason,
	})
}

func (p *docParser) feed(l sourceLine) {
	line := Classify(l.text)

	if p.skipTOC(l.text, line) {
		return
	}

	switch line.Kind {
	case PartHeading, SubPartHeading, ChapterHeading, SectionHeading:
		p.heading(l, line)
	case ArticleHeading:
		p.article(l, line)
	default:
		p.text(l.text)
	}
}

// skipTOC drops a 目录 block. The block ends at the first article line or
// when its first heading repeats as the start of the body.
func (p *docParser) skipTOC(raw string, line Line) bool {
	if strings.Join(strings.Fields(raw), "") == "目录" {
		p.inTOC, p.tocFirst = true, ""
		return true
	}
	if !p.inTOC {
		return false
	}
	switch line.Kind {
	case ArticleHeading:
		p.inTOC = false
		return false
	case PlainText:
		return true
	}
	if p.tocFirst == "" {
		p.tocFirst = raw
		return true
	}
	if raw == p.tocFirst {
		p.inTOC = false
		return false
	}
	return true
}

func (p *docParser) heading(l sourceLine, line Line) {
	p.closeArticle()
	if line.Err != nil {
		p.warn(l.number, l.text, fmt.Sprintf("unparsable %s number: %v", line.Kind, line.Err))
		p.skipping = true
		return
	}
	p.skipping = false

	node := &models.StructureNode{
		Level:  line.Kind.level(),
		Number: line.Marker,
		Title:  line.Text,
	}

	depth := line.Kind.depth()
	if parent := p.deepestOpen(depth); parent != nil {
		parent.Children = append(parent.Children, node)
	} else {
		p.result.Structure.Nodes = append(p.result.Structure.Nodes, node)
	}

	p.open[depth] = node
	for i := depth + 1; i < len(p.open); i++ {
		p.open[i] = nil
	}
}

// deepestOpen returns the innermost open container above the given depth
func (p *docParser) deepestOpen(above int) *models.StructureNode {
	for i := above - 1; i >= 0; i-- {
		if p.open[i] != nil {
			return p.open[i]
		}
	}
	return nil
}

func (p *docParser) article(l sourceLine, line Line) {
	if line.Err != nil {
		p.closeArticle()
		p.warn(l.number, l.text, fmt.Sprintf("unparsable article number: %v", line.Err))
		p.skipping = true
		return
	}

	index := line.Index()
	if index <= p.lastIndex && line.Attached {
		// prose that happens to open with an earlier article number
		p.text(l.text)
		return
	}
	if index <= p.lastIndex {
		reason := "article number out of order"
		if p.hasIndex(index) {
			reason = "duplicate article number"
		}
		p.warn(l.number, l.text, reason+", kept as text")
		p.text(l.text)
		return
	}

	p.closeArticle()
	p.skipping = false
	p.current = &articleBuilder{line: l.number, head: line, labels: p.open}
	if line.Text != "" {
		p.current.content = append(p.current.content, line.Text)
	}

	p.lastIndex = index
	if line.RangeEnd > 0 {
		p.lastIndex = float64(line.RangeEnd)
	}
}

func (p *docParser) hasIndex(index float64) bool {
	for i := range p.result.Articles {
		if p.result.Articles[i].Covers(index) {
			return true
		}
	}
	return p.current != nil && p.current.head.Index() == index
}

func (p *docParser) text(s string) {
	switch {
	case p.skipping:
	case p.current != nil:
		p.current.content = append(p.current.content, s)
	case p.deepestOpen(len(p.open)) != nil:
		node := p.deepestOpen(len(p.open))
		if node.Preamble != "" {
			node.Preamble += "\n"
		}
		node.Preamble += s
	default:
		p.preamble = append(p.preamble, s)
	}
}

func (p *docParser) closeArticle() {
	b := p.current
	if b == nil {
		return
	}
	p.current = nil

	content := strings.TrimSpace(strings.Join(b.content, "\n"))
	if content == "" {
		p.warn(b.line, b.head.Raw, "empty article body")
		return
	}

	article := models.Article{
		Number:        b.head.Marker,
		OrderingIndex: b.head.Index(),
		Content:       content,
	}
	if b.head.RangeEnd > 0 {
		article.RangeEnd = float64(b.head.RangeEnd)
	}

	var path []string
	for depth, node := range b.labels {
		if node == nil {
			continue
		}
		path = append(path, strings.TrimSpace(node.Number+" "+node.Title))
		switch depth {
		case 0:
			article.Part = node.Label()
		case 1:
			article.SubPart = node.Label()
		case 2:
			article.Chapter = node.Label()
		case 3:
			article.Section = node.Label()
		}
	}
	article.ChapterPath = strings.Join(path, ChapterPathSeparator)

	if owner := deepest(b.labels); owner != nil {
		owner.Articles = append(owner.Articles, article.Number)
	} else {
		p.result.Structure.Articles = append(p.result.Structure.Articles, article.Number)
	}

	p.result.Articles = append(p.result.Articles, article)
}

func deepest(labels [4]*models.StructureNode) *models.StructureNode {
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i] != nil {
			return labels[i]
		}
	}
	return nil
}
