package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/metrics"
	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/pool"
	"github.com/sublatesublate-design/legal-database/repository"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"
	"github.com/sublatesublate-design/legal-database/storage"
	"github.com/sublatesublate-design/legal-database/verify"
)

const companyArticle1 = "为了规范公司的组织和行为，保护公司、股东、职工和债权人的合法权益，完善中国特色现代企业制度，弘扬企业家精神，维护社会经济秩序，促进社会主义市场经济的发展，根据宪法，制定本法。"

const companyLaw = `中华人民共和国公司法
（2023年12月29日第十四届全国人民代表大会常务委员会第七次会议修订）
第一章 总则
第一条 ` + companyArticle1 + `
第二条 本法所称公司，是指依照本法在中华人民共和国境内设立的有限责任公司和股份有限公司。
第三条 公司是企业法人，有独立的法人财产，享有法人财产权。
第二章 附则
第四条 本法自2024年7月1日起施行。`

const constructionInterpretation = `最高人民法院关于审理建设工程施工合同纠纷案件适用法律问题的解释（一）
（2020年12月29日最高人民法院审判委员会第1825次会议通过）
第一条 建设工程施工合同具有下列情形之一的，应当依据民法典第一百五十三条第一款的规定，认定无效。
第二条 招标人和中标人另行签订的建设工程施工合同约定的工程范围、建设工期、工程质量、工程价款等实质性内容，与中标合同不一致，一方当事人请求按照中标合同确定权利义务的，人民法院应予支持。`

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store   *repository.MemoryStore
	engine  *search.Engine
	res     *resolver.Resolver
	cache   *cache.Cache
	metrics *metrics.Metrics
	laws    *LawService
	ingest  *IngestService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   repository.NewMemoryStore(),
		engine:  search.NewEngine(search.WithClock(func() time.Time { return fixedNow })),
		cache:   cache.New(cache.DefaultConfig()),
		metrics: metrics.New(),
	}
	f.res = resolver.New(f.store, f.engine, resolver.DefaultConfig())
	p := pool.New(pool.DefaultConfig(), f.metrics)

	archive, err := storage.NewLocalArchive(t.TempDir())
	require.NoError(t, err)

	f.laws, err = NewLawService(
		WithStore(f.store),
		WithEngine(f.engine),
		WithResolver(f.res),
		WithCache(f.cache),
		WithPool(p),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)

	f.ingest, err = NewIngestService(
		IngestWithStore(f.store),
		IngestWithEngine(f.engine),
		IngestWithResolver(f.res),
		IngestWithCache(f.cache),
		IngestWithPool(p),
		IngestWithArchive(archive),
		IngestWithMetrics(f.metrics),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) add(t *testing.T, text string, prov Provenance) *IngestReport {
	t.Helper()
	report, err := f.ingest.Ingest(context.Background(), Document{Text: text, Provenance: prov})
	require.NoError(t, err)
	return report
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestNewServicesRequireCollaborators(t *testing.T) {
	_, err := NewLawService()
	assert.Error(t, err)
	_, err = NewIngestService(IngestWithStore(repository.NewMemoryStore()))
	assert.Error(t, err)
}

func TestIngestReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report := f.add(t, companyLaw, Provenance{SourceRef: "npc/company-2023.txt"})
	assert.True(t, report.Created)
	assert.False(t, report.Updated)
	assert.Equal(t, "中华人民共和国公司法", report.Title)
	assert.Equal(t, 4, report.ArticlesParsed)
	assert.Empty(t, report.Warnings)
	assert.NotEmpty(t, report.ArchivePath)

	law, err := f.store.GetLaw(ctx, report.LawID)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryStatute, law.Category)
	assert.Equal(t, "2023-12-29", law.PublishDate.Format("2006-01-02"))
	require.NotNil(t, law.EffectiveDate)
	assert.Equal(t, "2024-07-01", law.EffectiveDate.Format("2006-01-02"))
	assert.Equal(t, ContentHash(companyLaw), law.ContentHash)

	articles, err := f.store.GetArticles(ctx, report.LawID)
	require.NoError(t, err)
	require.Len(t, articles, 4)
	assert.Equal(t, "总则", articles[0].Chapter)
	assert.Equal(t, "附则", articles[3].Chapter)

	again := f.add(t, companyLaw, Provenance{SourceRef: "npc/company-2023.txt"})
	assert.True(t, again.Unchanged)
	assert.Equal(t, report.LawID, again.LawID)

	amended := f.add(t, strings.Replace(companyLaw, "享有法人财产权", "依法享有法人财产权", 1), Provenance{SourceRef: "npc/company-2023.txt"})
	assert.True(t, amended.Updated)
	assert.Equal(t, report.LawID, amended.LawID)
	assert.NotEqual(t, report.ArchivePath, amended.ArchivePath)

	last, err := f.store.GetMetadata(ctx, MetaLastRunID)
	require.NoError(t, err)
	assert.Equal(t, amended.RunID.String(), last)
}

func TestIngestRejectsUnusableDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ingest.Ingest(ctx, Document{Text: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.ingest.Ingest(ctx, Document{Text: "某某法\n第一条 内容。"})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "publish date is required")

	_, err = f.ingest.Ingest(ctx, Document{Text: companyLaw, Provenance: Provenance{Category: "小说"}})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestIngestBatchReportsFailuresInPlace(t *testing.T) {
	f := newFixture(t)

	reports := f.ingest.IngestBatch(context.Background(), []Document{
		{Text: companyLaw},
		{Text: ""},
		{Text: constructionInterpretation},
	})
	require.Len(t, reports, 3)
	assert.True(t, reports[0].Created)
	assert.NotEmpty(t, reports[1].Error)
	assert.Equal(t, "failed", reports[1].Result())
	assert.True(t, reports[2].Created)
	assert.Equal(t, reports[0].RunID, reports[2].RunID)

	laws, _ := f.engine.Stats()
	assert.Equal(t, 2, laws)
}

func TestIngestRecordsRevisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.add(t, companyLaw, Provenance{})
	decision := f.add(t, "全国人民代表大会常务委员会关于修改《中华人民共和国公司法》的决定\n（2024年6月28日通过）\n一、将第三条修改为：公司是企业法人。", Provenance{})
	assert.Equal(t, 1, decision.Revisions)

	revs, err := f.store.ListRevisions(ctx, decision.LawID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, models.RevisionAmendment, revs[0].Type)
	require.NotNil(t, revs[0].PriorLawID)
	assert.Equal(t, company.LawID, *revs[0].PriorLawID)
}

// revisionlessStore fails every revision write
type revisionlessStore struct {
	*repository.MemoryStore
}

func (revisionlessStore) AppendRevision(context.Context, *models.Revision) error {
	return errors.New("revisions table unavailable")
}

func TestIngestRevisionFailureStillInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ingest, err := NewIngestService(
		IngestWithStore(revisionlessStore{f.store}),
		IngestWithEngine(f.engine),
		IngestWithResolver(f.res),
		IngestWithCache(f.cache),
	)
	require.NoError(t, err)

	_, err = ingest.Ingest(ctx, Document{Text: strings.Replace(companyLaw, "2023年12月29日", "2018年10月26日", 1)})
	require.NoError(t, err)

	before, err := f.laws.SearchLaws(ctx, SearchRequest{Query: "公司法"})
	require.NoError(t, err)
	assert.Equal(t, 1, before.Total)

	report, err := ingest.Ingest(ctx, Document{Text: companyLaw})
	require.NoError(t, err)
	assert.True(t, report.Created)
	assert.Equal(t, "created", report.Result())
	require.Len(t, report.Incomplete, 1)
	assert.Contains(t, report.Incomplete[0], "revisions")

	after, err := f.laws.SearchLaws(ctx, SearchRequest{Query: "公司法"})
	require.NoError(t, err)
	assert.Equal(t, 2, after.Total)

	res, err := f.laws.GetArticle(ctx, report.LawID.String(), "第一条")
	require.NoError(t, err)
	assert.True(t, res.Found)
}

const civilCode = `中华人民共和国民法典
（2020年5月28日第十三届全国人民代表大会第三次会议通过）
第一百五十三条 违反法律、行政法规的强制性规定的民事法律行为无效。但是，该强制性规定不导致该民事法律行为无效的除外。
第一百五十四条 行为人与相对人恶意串通，损害他人合法权益的民事法律行为无效。`

const contractInterpretation = `最高人民法院关于适用《中华人民共和国民法典》合同编通则若干问题的解释
（2023年12月4日最高人民法院审判委员会第1889次会议通过）
第一条 合同违反法律、行政法规的强制性规定，依照《中华人民共和国民法典》第一百五十三条第一款认定无效。
第二条 当事人恶意串通的，适用民法典第一百五十四条的规定。`

func TestGetArticleReturnsCrossReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, civilCode, Provenance{})

	before, err := f.laws.GetArticle(ctx, "民法典", "第一百五十四条")
	require.NoError(t, err)
	assert.Empty(t, before.Related)

	interp := f.add(t, contractInterpretation, Provenance{})
	assert.Equal(t, 2, interp.CrossReferences)
	assert.Empty(t, interp.Incomplete)

	res, err := f.laws.GetArticle(ctx, "民法典", "第一百五十三条")
	require.NoError(t, err)
	require.Len(t, res.Related, 1)
	assert.Equal(t, interp.LawID, res.Related[0].LawID)
	assert.Equal(t, "第一条", res.Related[0].Number)
	assert.Equal(t, models.CrossRefInterpretation, res.Related[0].Type)
	assert.Contains(t, res.Related[0].Preview, "强制性规定")

	after, err := f.laws.GetArticle(ctx, "民法典", "第一百五十四条")
	require.NoError(t, err)
	require.Len(t, after.Related, 1, "cached result refreshed by the citing law's ingest")
	assert.Equal(t, "第二条", after.Related[0].Number)

	rewritten := strings.Replace(contractInterpretation, "适用民法典第一百五十四条的规定", "依法处理", 1)
	again := f.add(t, rewritten, Provenance{})
	assert.True(t, again.Updated)
	assert.Equal(t, 1, again.CrossReferences)

	after, err = f.laws.GetArticle(ctx, "民法典", "第一百五十四条")
	require.NoError(t, err)
	assert.Empty(t, after.Related)

	require.NoError(t, f.ingest.PurgeLaw(ctx, interp.LawID))
	res, err = f.laws.GetArticle(ctx, "民法典", "第一百五十三条")
	require.NoError(t, err)
	assert.Empty(t, res.Related)
}

func TestCaseKeywords(t *testing.T) {
	kws := CaseKeywords("承包人与发包人签订的建设工程施工合同约定的工程价款与中标合同不一致，请求按照中标合同结算。")
	assert.Equal(t, []string{"承包人", "发包人签订", "建设工程施工", "工程价款", "中标", "不一致", "结算"}, kws)

	assert.Empty(t, CaseKeywords("合同约定的双方责任"))
	assert.Len(t, CaseKeywords(strings.Repeat("甲公司和乙公司和丙公司和丁公司和戊公司和己公司和庚公司和辛公司和壬公司和", 2)), 8)
}

func TestGetLegalBasis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})
	construction := f.add(t, constructionInterpretation, Provenance{})

	res, err := f.laws.GetLegalBasis(ctx, LegalBasisRequest{
		CaseDescription: "承包人与发包人签订的建设工程施工合同约定的工程价款与中标合同不一致，请求按照中标合同结算。",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Keywords, "建设工程施工")
	assert.NotContains(t, res.Keywords, "合同")
	require.NotEmpty(t, res.Laws.Hits)
	assert.Equal(t, construction.LawID, res.Laws.Hits[0].LawID)
	assert.LessOrEqual(t, len(res.Laws.Hits), 5)

	_, err = f.laws.GetLegalBasis(ctx, LegalBasisRequest{CaseDescription: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetArticle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.add(t, companyLaw, Provenance{})

	res, err := f.laws.GetArticle(ctx, "公司法", "第二条")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "第二条", res.Article.Number)
	assert.Equal(t, "总则", res.Article.Chapter)
	assert.Equal(t, 2.0, res.Article.OrderingIndex)
	assert.Equal(t, []string{"第一条", "第三条"}, res.Siblings)
	assert.Equal(t, report.LawID, res.Law.ID)

	byID, err := f.laws.GetArticle(ctx, report.LawID.String(), "2")
	require.NoError(t, err)
	assert.Equal(t, mustJSON(t, res), mustJSON(t, byID))

	missing, err := f.laws.GetArticle(ctx, "《公司法》", "第九十九条")
	require.NoError(t, err)
	assert.False(t, missing.Found)
	assert.Equal(t, verify.ReasonArticleNotFound, missing.Reason)

	unknown, err := f.laws.GetArticle(ctx, "不存在的法律名称", "第一条")
	require.NoError(t, err)
	assert.False(t, unknown.Found)
	assert.Equal(t, verify.ReasonLawNotFound, unknown.Reason)

	_, err = f.laws.GetArticle(ctx, "公司法", "第X条")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.laws.GetArticle(ctx, "  ", "第一条")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetArticleSeesUpdateImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})

	before, err := f.laws.GetArticle(ctx, "公司法", "第三条")
	require.NoError(t, err)
	assert.Equal(t, "公司是企业法人，有独立的法人财产，享有法人财产权。", before.Article.Content)

	f.add(t, strings.Replace(companyLaw, "享有法人财产权", "依法享有法人财产权", 1), Provenance{})

	after, err := f.laws.GetArticle(ctx, "公司法", "第三条")
	require.NoError(t, err)
	assert.Equal(t, "公司是企业法人，有独立的法人财产，依法享有法人财产权。", after.Article.Content)
}

func TestGetLawStructure(t *testing.T) {
	f := newFixture(t)
	f.add(t, companyLaw, Provenance{})

	res, err := f.laws.GetLawStructure(context.Background(), "中华人民共和国公司法")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, 4, res.ArticleCount)
	require.Len(t, res.Structure.Nodes, 2)
	assert.Equal(t, "第一章", res.Structure.Nodes[0].Number)
	assert.Equal(t, "总则", res.Structure.Nodes[0].Title)
	assert.Equal(t, []string{"第一条", "第二条", "第三条"}, res.Structure.Nodes[0].Articles)
	assert.Equal(t, []string{"第四条"}, res.Structure.Nodes[1].Articles)
}

func TestCheckLawValidity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.add(t, strings.Replace(companyLaw, "2023年12月29日", "2018年10月26日", 1), Provenance{Status: "已废止"})
	current := f.add(t, companyLaw, Provenance{})
	assert.Equal(t, 1, current.Revisions, "new version links to the previous one")

	res, err := f.laws.CheckLawValidity(ctx, old.LawID.String())
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, models.StatusRepealed, res.Status)
	assert.False(t, res.InForce)
	require.NotNil(t, res.Replacement)
	assert.Equal(t, current.LawID, res.Replacement.ID)

	res, err = f.laws.CheckLawValidity(ctx, "公司法")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, current.LawID, res.Law.ID, "active version wins the tie")
	assert.True(t, res.InForce)
	assert.Equal(t, "2024-07-01", res.EffectiveDate)
	assert.Nil(t, res.Replacement)
	require.Len(t, res.Revisions, 1)
	assert.Equal(t, old.LawID, *res.Revisions[0].PriorLawID)
}

func TestVerifyCitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})

	exact, err := f.laws.VerifyCitation(ctx, "公司法", "第一条", companyArticle1)
	require.NoError(t, err)
	assert.Equal(t, verify.Exact, exact.Classification)
	assert.Equal(t, 1.0, exact.Similarity)

	altered, err := f.laws.VerifyCitation(ctx, "公司法", "第一条", strings.Replace(companyArticle1, "制定本法", "制订本法", 1))
	require.NoError(t, err)
	assert.Equal(t, verify.Mismatch, altered.Classification)
	assert.True(t, altered.Altered)

	missing, err := f.laws.VerifyCitation(ctx, "公司法", "第五十条", "任意文本")
	require.NoError(t, err)
	assert.Equal(t, verify.NotFound, missing.Classification)
	assert.Equal(t, verify.ReasonArticleNotFound, missing.Reason)

	_, err = f.laws.VerifyCitation(ctx, "", "第一条", companyArticle1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestVerifyCitationSpellingsShareCacheEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})
	f.cache.Purge()

	first, err := f.laws.VerifyCitation(ctx, "公司法", "第一条", companyArticle1)
	require.NoError(t, err)
	entries := f.cache.Stats().Entries

	for _, c := range []struct{ law, article string }{
		{"《公司法》", "第1条"},
		{" 公司法 ", "1"},
		{"《 公司法 》", "第一条"},
	} {
		res, err := f.laws.VerifyCitation(ctx, c.law, c.article, companyArticle1)
		require.NoError(t, err)
		assert.Equal(t, first.Classification, res.Classification)
		assert.Equal(t, c.law, res.LawName)
		assert.Equal(t, c.article, res.Article)
	}
	assert.Equal(t, entries, f.cache.Stats().Entries)
	assert.Equal(t, "公司法", first.LawName)
}

func TestBatchVerify(t *testing.T) {
	f := newFixture(t)
	f.add(t, companyLaw, Provenance{})

	text := "根据《公司法》第一条规定：“" + companyArticle1 + "”另见《民法典》第一条。"
	res, err := f.laws.BatchVerify(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	assert.Equal(t, verify.Exact, res.Results[0].Classification)
	assert.Equal(t, models.StatusActive, res.Results[0].LawStatus)
	assert.Equal(t, verify.NotFound, res.Results[1].Classification)
	assert.Equal(t, verify.ReasonLawNotFound, res.Results[1].Reason)
	assert.Equal(t, 1, res.Counts[verify.Exact])

	_, err = f.laws.BatchVerify(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSearchLawsSeededAliasRanksFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})
	construction := f.add(t, constructionInterpretation, Provenance{})

	seeds, err := ParseSeeds(strings.NewReader(`
aliases:
  - alias: 建设工程司法解释
    law: 最高人民法院关于审理建设工程施工合同纠纷案件适用法律问题的解释（一）
    type: abbreviation
  - alias: 无效别名
    law: 不存在的法律
synonyms:
  - term: 工程款
    canonical: 工程价款
`))
	require.NoError(t, err)

	report, err := f.ingest.ApplySeeds(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Aliases)
	assert.Equal(t, 1, report.Synonyms)
	assert.Len(t, report.Skipped, 1)

	res, err := f.laws.SearchLaws(ctx, SearchRequest{Query: "建设工程司法解释"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, construction.LawID, res.Hits[0].LawID)
	require.NotNil(t, res.Resolved)
	assert.Equal(t, 1.0, res.Resolved.Confidence)
	assert.Equal(t, models.CategoryJudicialInterpretation, res.Hits[0].Category)
}

func TestSearchCacheConsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})
	f.add(t, constructionInterpretation, Provenance{})

	req := SearchRequest{Query: "公司 法人财产"}
	miss, err := f.laws.SearchLaws(ctx, req)
	require.NoError(t, err)
	hitsBefore := f.cache.Stats().Hits

	hit, err := f.laws.SearchLaws(ctx, SearchRequest{Query: " 公司  法人财产 "})
	require.NoError(t, err)
	assert.Greater(t, f.cache.Stats().Hits, hitsBefore)
	assert.Equal(t, mustJSON(t, miss), mustJSON(t, hit))

	_, err = f.laws.ClearCaches(ctx)
	require.NoError(t, err)
	recomputed, err := f.laws.SearchLaws(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, mustJSON(t, miss), mustJSON(t, recomputed))
}

func TestSearchArticlesWithinLaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := f.add(t, companyLaw, Provenance{})
	f.add(t, constructionInterpretation, Provenance{})

	res, err := f.laws.SearchArticles(ctx, SearchRequest{Query: "法人财产", Law: "公司法"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	for _, h := range res.Hits {
		assert.Equal(t, company.LawID, h.LawID)
	}
	assert.Equal(t, "第三条", res.Hits[0].Number)

	miss, err := f.laws.SearchArticles(ctx, SearchRequest{Query: "法人财产", Law: "不存在的法律名称"})
	require.NoError(t, err)
	require.NotNil(t, miss.Miss)
	assert.Empty(t, miss.Hits)

	_, err = f.laws.SearchArticles(ctx, SearchRequest{Query: "，。"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestResolveLawAndAliases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := f.add(t, companyLaw, Provenance{})

	alias, err := f.laws.AddAlias(ctx, AliasRequest{Alias: "新公司法", Law: "公司法", Confidence: 1.0})
	require.NoError(t, err)
	assert.Equal(t, 0.95, alias.Confidence, "non-curated aliases are capped")

	_, err = f.laws.AddAlias(ctx, AliasRequest{Alias: "新公司法", Law: "公司法", Confidence: 0.7})
	assert.ErrorIs(t, err, models.ErrValidationConflict)

	res, err := f.laws.ResolveLaw(ctx, "《新公司法》", false)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, company.LawID, res.Best.LawID)
	assert.Equal(t, resolver.MatchAlias, res.Best.MatchedBy)

	none, err := f.laws.ResolveLaw(ctx, "完全无关的名称", true)
	require.NoError(t, err)
	assert.False(t, none.Found)

	_, err = f.laws.AddAlias(ctx, AliasRequest{Alias: "x", Law: "不存在的法律名称", Confidence: 0.8})
	assert.ErrorIs(t, err, models.ErrNotFound)

	syn, err := f.laws.AddSynonym(ctx, "开公司", "公司")
	require.NoError(t, err)
	assert.Equal(t, "公司", syn.Canonical)
}

func TestPurgeLaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	report := f.add(t, companyLaw, Provenance{})

	_, err := f.laws.GetArticle(ctx, "公司法", "第一条")
	require.NoError(t, err)

	require.NoError(t, f.ingest.PurgeLaw(ctx, report.LawID))

	res, err := f.laws.GetArticle(ctx, "公司法", "第一条")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, verify.ReasonLawNotFound, res.Reason)

	laws, _ := f.engine.Stats()
	assert.Zero(t, laws)
	assert.ErrorIs(t, f.ingest.PurgeLaw(ctx, report.LawID), models.ErrNotFound)
}

func TestCancelledCallReportsTimeout(t *testing.T) {
	f := newFixture(t)
	f.add(t, companyLaw, Provenance{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.laws.GetArticle(ctx, "公司法", "第一条")
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, "timeout", Outcome(err))
}

func TestLoadCorpusRebuildsIndexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, companyLaw, Provenance{})
	f.add(t, constructionInterpretation, Provenance{})

	engine := search.NewEngine()
	res := resolver.New(f.store, engine, resolver.DefaultConfig())
	n, err := LoadCorpus(ctx, f.store, engine, res, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	wantLaws, wantArticles := f.engine.Stats()
	gotLaws, gotArticles := engine.Stats()
	assert.Equal(t, wantLaws, gotLaws)
	assert.Equal(t, wantArticles, gotArticles)

	resolved, err := res.Resolve(ctx, "公司法")
	require.NoError(t, err)
	assert.Equal(t, "中华人民共和国公司法", resolved.Best.Title)
}

func TestStatsAndOutcome(t *testing.T) {
	f := newFixture(t)
	f.add(t, companyLaw, Provenance{})

	stats, err := f.laws.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Laws)
	assert.Equal(t, 4, stats.Articles)
	assert.Equal(t, 5, stats.PoolSize)
	assert.Zero(t, stats.PoolInUse)

	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "not_found", Outcome(models.ErrNotFound))
	assert.Equal(t, "ambiguous", Outcome(&models.AmbiguousError{Query: "x"}))
	assert.Equal(t, "exhausted", Outcome(models.ErrResourceExhausted))
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, models.CategoryJudicialInterpretation, InferCategory("最高人民法院关于适用《中华人民共和国民法典》合同编通则若干问题的解释"))
	assert.Equal(t, models.CategoryAdministrativeRegulation, InferCategory("优化营商环境条例"))
	assert.Equal(t, models.CategoryDepartmentalRule, InferCategory("网络交易监督管理办法"))
	assert.Equal(t, models.CategoryStatute, InferCategory("中华人民共和国民法典"))
}
