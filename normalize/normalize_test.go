package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName_Variants(t *testing.T) {
	want := Name("民法典")
	for _, v := range []string{"民法典 ", "《民法典》", " 《 民法典 》", "民法典。", "“民法典”"} {
		assert.Equal(t, want, Name(v), v)
	}
	assert.Equal(t, "民法典", want)
}

func TestName_FoldsWidthAndCase(t *testing.T) {
	assert.Equal(t, "abc123", Name("ＡＢＣ１２３"))
	assert.Equal(t, "gdpr", Name("G.D.P.R"))
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"建设工程", "司法解释"}, Terms("建设工程，司法解释"))
	assert.Equal(t, []string{"公司法"}, Terms("  《公司法》 "))
	assert.Empty(t, Terms("，。 "))
}

func TestText(t *testing.T) {
	assert.Equal(t, "为了规范,制定本法", Text("“ 为了规范，制定本法。”"))
	assert.Equal(t, Text("为了规范，制定本法。"), Text("为了 规范，\n制定本法"))
}
