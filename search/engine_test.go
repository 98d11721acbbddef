package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublatesublate-design/legal-database/models"
)

var fixedNow = time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

func date(y int) *time.Time {
	d := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
	return &d
}

func law(title string, status models.LawStatus, effective int, content string) *models.Law {
	return &models.Law{
		ID:            uuid.New(),
		Title:         title,
		Category:      models.CategoryStatute,
		Status:        status,
		PublishDate:   *date(effective),
		EffectiveDate: date(effective),
		Content:       content,
	}
}

func articles(lawID uuid.UUID, contents ...string) []models.Article {
	out := make([]models.Article, len(contents))
	for i, c := range contents {
		out[i] = models.Article{
			ID:            uuid.New(),
			LawID:         lawID,
			Number:        fmt.Sprintf("第%d条", i+1),
			OrderingIndex: float64(i + 1),
			Content:       c,
		}
	}
	return out
}

func newEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

func TestTrigrams(t *testing.T) {
	assert.Len(t, Trigrams("数据安全法"), 3)
	assert.Equal(t, map[string]struct{}{"刑法": {}}, Trigrams("刑法"))
	assert.Empty(t, Trigrams(""))

	assert.InDelta(t, 1.0, Similarity(Trigrams("数据安全法"), Trigrams("数据安全法")), 1e-9)
	assert.Zero(t, Similarity(Trigrams("数据安全法"), Trigrams("个人信息保护")))
}

func TestIndexMatch(t *testing.T) {
	ix := NewIndex()
	ix.Replace(nil, []Doc{
		{ID: "a", Title: "中华人民共和国刑法", Body: "为了惩罚犯罪，保护人民"},
		{ID: "b", Title: "中华人民共和国民法典", Body: "为了保护民事主体的合法权益"},
	})
	require.Equal(t, 2, ix.Len())

	short := ix.Match("刑法")
	require.Contains(t, short, "a")
	assert.NotContains(t, short, "b")
	assert.True(t, short["a"].TitlePhrase)

	long := ix.Match("合法权益")
	require.Contains(t, long, "b")
	assert.True(t, long["b"].BodyPhrase)
	assert.InDelta(t, 1.0, long["b"].BodyCoverage, 1e-9)

	ix.Replace([]string{"a"}, nil)
	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.Match("刑法"))
}

func TestWeights(t *testing.T) {
	w := DefaultWeights()
	assert.Greater(t, w.StatusFactor(models.StatusActive), w.StatusFactor(models.StatusAmended))
	assert.Greater(t, w.StatusFactor(models.StatusAmended), w.StatusFactor(models.StatusRepealed))

	newer := w.RecencyScore(*date(2020), fixedNow)
	older := w.RecencyScore(*date(2000), fixedNow)
	assert.Greater(t, newer, older)
	assert.Equal(t, 1.0, w.RecencyScore(*date(2030), fixedNow))
	assert.Zero(t, w.RecencyScore(time.Time{}, fixedNow))
}

func TestSearchLawsStatusOrdering(t *testing.T) {
	e := newEngine()
	body := "为了规范数据处理活动，保障数据安全。"
	active := law("甲数据安全条例", models.StatusActive, 2015, body)
	amended := law("乙数据安全条例", models.StatusAmended, 2015, body)
	repealed := law("丙数据安全条例", models.StatusRepealed, 2015, body)
	for _, l := range []*models.Law{repealed, amended, active} {
		e.IndexLaw(l, nil)
	}

	page := e.SearchLaws(Query{Groups: GroupsFromText("数据安全")})
	require.Equal(t, 3, page.Total)
	assert.Equal(t, active.ID, page.Hits[0].LawID)
	assert.Equal(t, amended.ID, page.Hits[1].LawID)
	assert.Equal(t, repealed.ID, page.Hits[2].LawID)

	only := e.SearchLaws(Query{Groups: GroupsFromText("数据安全"), Status: models.StatusRepealed})
	require.Equal(t, 1, only.Total)
	assert.Equal(t, repealed.ID, only.Hits[0].LawID)
}

func TestSearchLawsRecency(t *testing.T) {
	e := newEngine()
	body := "关于网络安全等级保护的规定。"
	older := law("甲网络安全规定", models.StatusActive, 2005, body)
	newer := law("乙网络安全规定", models.StatusActive, 2021, body)
	e.IndexLaw(older, nil)
	e.IndexLaw(newer, nil)

	page := e.SearchLaws(Query{Groups: GroupsFromText("网络安全")})
	require.Len(t, page.Hits, 2)
	assert.Equal(t, newer.ID, page.Hits[0].LawID)
	assert.Greater(t, page.Hits[0].Score, page.Hits[1].Score)
}

func TestSearchLawsPaginationIsStable(t *testing.T) {
	e := newEngine()
	for i := 0; i < 7; i++ {
		e.IndexLaw(law(fmt.Sprintf("环境保护条例%d", i), models.StatusActive, 2010, "保护和改善环境。"), nil)
	}

	q := Query{Groups: GroupsFromText("环境保护")}
	full := e.SearchLaws(q)
	require.Equal(t, 7, full.Total)

	for i := 1; i < len(full.Hits); i++ {
		a, b := full.Hits[i-1], full.Hits[i]
		if a.Score == b.Score {
			assert.Less(t, a.LawID.String(), b.LawID.String())
		} else {
			assert.Greater(t, a.Score, b.Score)
		}
	}

	var paged []LawHit
	for offset := 0; offset < full.Total; offset += 3 {
		q.Offset, q.Limit = offset, 3
		paged = append(paged, e.SearchLaws(q).Hits...)
	}
	assert.Equal(t, full.Hits, paged)

	q.Offset, q.Limit = 0, 3
	assert.Equal(t, e.SearchLaws(q), e.SearchLaws(q))

	q.Offset = 100
	assert.Empty(t, e.SearchLaws(q).Hits)
}

func TestSearchLawsFiltersAndBoosts(t *testing.T) {
	e := newEngine()
	statute := law("中华人民共和国建筑法", models.StatusActive, 2019, "建设工程施工合同。")
	interp := law("最高人民法院关于审理建设工程施工合同纠纷案件适用法律问题的解释（一）", models.StatusActive, 2021, "建设工程施工合同纠纷。")
	interp.Category = models.CategoryJudicialInterpretation
	e.IndexLaw(statute, nil)
	e.IndexLaw(interp, nil)

	page := e.SearchLaws(Query{Groups: GroupsFromText("建设工程"), Category: models.CategoryJudicialInterpretation})
	require.Equal(t, 1, page.Total)
	assert.Equal(t, interp.ID, page.Hits[0].LawID)

	boosted := e.SearchLaws(Query{
		Groups: GroupsFromText("建筑"),
		Boosts: map[uuid.UUID]float64{interp.ID: 1},
	})
	require.NotEmpty(t, boosted.Hits)
	assert.Equal(t, interp.ID, boosted.Hits[0].LawID)
}

func TestIndexLawReplacesAndRemoves(t *testing.T) {
	e := newEngine()
	l := law("测试条例", models.StatusActive, 2010, "旧的内容关于森林防火。")
	e.IndexLaw(l, articles(l.ID, "森林防火工作实行预防为主。"))
	require.Equal(t, 1, e.SearchLaws(Query{Groups: GroupsFromText("森林防火")}).Total)
	require.Equal(t, 1, e.SearchArticles(Query{Groups: GroupsFromText("森林防火")}).Total)

	updated := *l
	updated.Content = "新的内容关于草原保护。"
	e.IndexLaw(&updated, articles(l.ID, "草原保护实行统一规划。"))

	assert.Zero(t, e.SearchLaws(Query{Groups: GroupsFromText("森林防火")}).Total)
	assert.Zero(t, e.SearchArticles(Query{Groups: GroupsFromText("森林防火")}).Total)
	assert.Equal(t, 1, e.SearchArticles(Query{Groups: GroupsFromText("草原保护")}).Total)

	laws, arts := e.Stats()
	assert.Equal(t, 1, laws)
	assert.Equal(t, 1, arts)

	e.RemoveLaw(l.ID)
	laws, arts = e.Stats()
	assert.Zero(t, laws)
	assert.Zero(t, arts)
	assert.Zero(t, e.SearchLaws(Query{Groups: GroupsFromText("草原保护")}).Total)
}

func TestSearchArticles(t *testing.T) {
	e := newEngine()
	l := law("中华人民共和国劳动合同法", models.StatusActive, 2013, "劳动合同")
	e.IndexLaw(l, articles(l.ID,
		"为了完善劳动合同制度，明确劳动合同双方当事人的权利和义务。",
		"用人单位自用工之日起即与劳动者建立劳动关系。",
		"用人单位违反本法规定解除劳动合同的，应当支付赔偿金。",
	))

	page := e.SearchArticles(Query{Groups: GroupsFromText("解除劳动合同 赔偿金")})
	require.NotEmpty(t, page.Hits)
	top := page.Hits[0]
	assert.Equal(t, "第3条", top.Number)
	assert.Equal(t, l.ID, top.LawID)
	assert.Contains(t, top.Snippet, "【解除劳动合同】")

	scoped := e.SearchArticles(Query{Groups: GroupsFromText("劳动"), LawID: uuid.New()})
	assert.Zero(t, scoped.Total)
}

func TestSimilarTitles(t *testing.T) {
	e := newEngine()
	l := law("中华人民共和国个人信息保护法", models.StatusActive, 2021, "")
	l.ShortTitle = "个人信息保护法"
	other := law("中华人民共和国数据安全法", models.StatusActive, 2021, "")
	e.IndexLaw(l, nil)
	e.IndexLaw(other, nil)

	matches := e.SimilarTitles("个人信息保护")
	require.NotEmpty(t, matches)
	assert.Equal(t, l.ID, matches[0].LawID)
	assert.Greater(t, matches[0].Similarity, 0.5)

	assert.Empty(t, e.SimilarTitles("《》"))
}

func TestSnippet(t *testing.T) {
	content := "第一款 用人单位应当依法建立和完善劳动规章制度，保障劳动者享有劳动权利、履行劳动义务。"
	got := Snippet(content, [][]string{{"劳动规章制度"}})
	assert.Contains(t, got, "【劳动规章制度】")

	long := ""
	for i := 0; i < 30; i++ {
		long += "前文"
	}
	long += "关键词"
	got = Snippet(long, [][]string{{"关键词"}})
	assert.True(t, len([]rune(got)) < len([]rune(long))+2)
	assert.Contains(t, got, "…")

	assert.Equal(t, "短文", Snippet("短文", [][]string{{"不存在"}}))
}
