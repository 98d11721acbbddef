package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/normalize"
)

const (
	maxCaseRunes      = 3000
	maxCaseKeywords   = 8
	defaultBasisLimit = 5
)

// caseStopwords are contract and procedure words common to almost every
// case description. Longer entries come first so "本合同" is removed whole.
var caseStopwords = strings.NewReplacer(
	"本合同", " ", "当事人", " ",
	"合同", " ", "约定", " ", "规定", " ", "条款", " ", "双方", " ", "一方", " ",
	"甲方", " ", "乙方", " ", "应当", " ", "可以", " ", "不得", " ", "应该", " ",
	"必须", " ", "协议", " ", "根据", " ", "依据", " ", "按照", " ", "请求", " ",
	"进行", " ", "情况", " ", "问题", " ", "事项", " ", "内容", " ", "要求", " ",
	"条件", " ", "方式", " ", "期限", " ", "责任", " ", "权利", " ", "义务", " ",
	"违反", " ", "承担", " ", "履行", " ", "支付", " ", "相关", " ", "有关", " ",
)

// caseParticles split a run of Han text into candidate keywords
var caseParticles = map[rune]bool{
	'的': true, '与': true, '和': true, '及': true, '或': true, '就': true,
	'被': true, '将': true, '把': true, '向': true, '从': true, '了': true, '并': true,
}

// CaseKeywords draws up to eight distinct search keywords from a free-text
// case description, in order of first appearance
func CaseKeywords(description string) []string {
	text := []rune(description)
	if len(text) > maxCaseRunes {
		text = text[:maxCaseRunes]
	}

	var out []string
	seen := make(map[string]bool)
	for _, term := range normalize.Terms(caseStopwords.Replace(string(text))) {
		for _, kw := range strings.FieldsFunc(term, func(r rune) bool { return caseParticles[r] }) {
			if len([]rune(kw)) < 2 || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
			if len(out) == maxCaseKeywords {
				return out
			}
		}
	}
	return out
}

// LegalBasisRequest represents a get_legal_basis call
type LegalBasisRequest struct {
	CaseDescription string `json:"case_description"`
	Limit           int    `json:"limit,omitempty"`
}

// LegalBasisResult is the keyword search run for a case description
type LegalBasisResult struct {
	Keywords []string          `json:"keywords"`
	Laws     *SearchLawsResult `json:"laws"`
}

// GetLegalBasis suggests laws relevant to a case description by searching
// for the keywords it contains. It is a starting point for research, not a
// legal analysis.
func (s *LawService) GetLegalBasis(ctx context.Context, req LegalBasisRequest) (*LegalBasisResult, error) {
	var out *LegalBasisResult
	err := s.call(ctx, "get_legal_basis", func(ctx context.Context) error {
		keywords := CaseKeywords(req.CaseDescription)
		if len(keywords) == 0 {
			return fmt.Errorf("%w: case description has no usable keywords", models.ErrInvalidInput)
		}
		limit := req.Limit
		if limit <= 0 {
			limit = defaultBasisLimit
		}

		laws, err := s.searchLaws(ctx, SearchRequest{Query: strings.Join(keywords, " "), Limit: limit})
		if err != nil {
			return err
		}
		out = &LegalBasisResult{Keywords: keywords, Laws: laws}
		return nil
	})
	return out, err
}
