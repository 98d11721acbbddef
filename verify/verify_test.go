package verify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublatesublate-design/legal-database/models"
	"github.com/sublatesublate-design/legal-database/repository"
	"github.com/sublatesublate-design/legal-database/resolver"
)

const companyArticle1 = "为了规范公司的组织和行为，保护公司、股东、职工和债权人的合法权益，完善中国特色现代企业制度，弘扬企业家精神，维护社会经济秩序，促进社会主义市场经济的发展，根据宪法，制定本法。"

type storeArticles struct {
	repository.Store
}

func (s storeArticles) Law(ctx context.Context, id uuid.UUID) (*models.Law, error) {
	return s.GetLaw(ctx, id)
}

func (s storeArticles) Article(ctx context.Context, lawID uuid.UUID, index float64) (*models.Article, error) {
	return s.GetArticle(ctx, lawID, index)
}

func saveLaw(t *testing.T, store repository.Store, title, short string, published time.Time, articles ...models.Article) *models.Law {
	t.Helper()
	res, err := store.SaveLaw(context.Background(), &models.Law{
		Title:       title,
		ShortTitle:  short,
		Category:    models.CategoryStatute,
		Status:      models.StatusActive,
		PublishDate: published,
		ContentHash: title,
	}, articles)
	require.NoError(t, err)
	return res.Law
}

func newVerifier(t *testing.T) (*Verifier, *models.Law) {
	t.Helper()
	store := repository.NewMemoryStore()
	law := saveLaw(t, store, "中华人民共和国公司法", "公司法", time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
		models.Article{Number: "第一条", OrderingIndex: 1, Content: companyArticle1},
		models.Article{Number: "第二条", OrderingIndex: 2, Content: "本法所称公司，是指依照本法在中华人民共和国境内设立的有限责任公司和股份有限公司。"},
	)

	r := resolver.New(store, nil, resolver.DefaultConfig())
	require.NoError(t, r.Load(context.Background()))
	return New(r, storeArticles{store}, DefaultThresholds()), law
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("公司法", "公司法"))
	assert.Equal(t, 1, Distance("公司法", "公司"))
	assert.Equal(t, 1, Distance("制定本法", "制订本法"))
	assert.Equal(t, 3, Distance("", "abc"))
	assert.Equal(t, 3, Distance("kitten", "sitting"))
}

func TestCompare(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name    string
		claimed string
		want    Classification
		sim     float64
		partial bool
		altered bool
	}{
		{
			name:    "verbatim",
			claimed: companyArticle1,
			want:    Exact,
			sim:     1,
		},
		{
			name:    "whitespace and full-width variants",
			claimed: "  “为了规范公司的组织和行为，保护公司、股东、职工和债权人的合法权益， 完善中国特色现代企业制度，弘扬企业家精神，维护社会经济秩序，促进社会主义市场经济的发展，根据宪法，制定本法。”\n",
			want:    Exact,
			sim:     1,
		},
		{
			name:    "one substituted character",
			claimed: "为了规范公司的组织和行为，保护公司、股东、职工和债权人的合法权益，完善中国特色现代企业制度，弘扬企业家精神，维护社会经济秩序，促进社会主义市场经济的发展，根据宪法，制订本法。",
			want:    Mismatch,
			sim:     0.9884,
			altered: true,
		},
		{
			name:    "reworded",
			claimed: "为了规范公司的组织与行为，保障公司、股东、职工以及债权人的合法权益，完善中国特色现代企业制度，弘扬企业家精神，维护社会经济秩序，促进社会主义市场经济发展，依据宪法，制定本法。",
			want:    Paraphrase,
			sim:     0.9302,
		},
		{
			name:    "excerpt",
			claimed: "保护公司、股东、职工和债权人的合法权益",
			want:    Exact,
			sim:     1,
			partial: true,
		},
		{
			name:    "unrelated text",
			claimed: "公司是企业法人，有独立的法人财产，享有法人财产权。",
			want:    Mismatch,
			sim:     0.0814,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(companyArticle1, tt.claimed, th)
			assert.Equal(t, tt.want, got.Classification)
			assert.InDelta(t, tt.sim, got.Similarity, 1e-4)
			assert.Equal(t, tt.partial, got.Partial)
			assert.Equal(t, tt.altered, got.Altered)
		})
	}
}

func TestComparePunctuationOnly(t *testing.T) {
	claimed := "为了规范公司的组织和行为，保护公司，股东，职工和债权人的合法权益，完善中国特色现代企业制度，弘扬企业家精神，维护社会经济秩序，促进社会主义市场经济的发展，根据宪法，制定本法"
	got := Compare(companyArticle1, claimed, DefaultThresholds())
	assert.Equal(t, Exact, got.Classification)
	assert.Less(t, got.Similarity, 1.0)
}

func TestCompareShortExcerptIsNotExact(t *testing.T) {
	got := Compare(companyArticle1, "制定本法", DefaultThresholds())
	assert.NotEqual(t, Exact, got.Classification)
}

func TestCompareEmptyClaim(t *testing.T) {
	got := Compare(companyArticle1, "  “” ", DefaultThresholds())
	assert.Equal(t, Mismatch, got.Classification)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Exact: 0.8, Paraphrase: 0.9}.Validate())
	assert.Error(t, Thresholds{Exact: 1.2, Paraphrase: 0.8}.Validate())
	assert.Error(t, Thresholds{Exact: 0.98, Paraphrase: 0.8, AlteredMaxEdits: -1}.Validate())
}

func TestVerifyExact(t *testing.T) {
	v, law := newVerifier(t)

	res, err := v.Verify(context.Background(), "公司法", "第一条", companyArticle1)
	require.NoError(t, err)
	assert.Equal(t, Exact, res.Classification)
	assert.InDelta(t, 1.0, res.Similarity, 1e-9)
	require.NotNil(t, res.LawID)
	assert.Equal(t, law.ID, *res.LawID)
	assert.Equal(t, "第一条", res.ArticleNumber)
	assert.Equal(t, models.StatusActive, res.LawStatus)
}

func TestVerifySubstitutedCharacter(t *testing.T) {
	v, _ := newVerifier(t)

	claimed := []rune(companyArticle1)
	claimed[10] = '甲'
	res, err := v.Verify(context.Background(), "《公司法》", "1", string(claimed))
	require.NoError(t, err)
	assert.Equal(t, Mismatch, res.Classification)
	assert.True(t, res.Altered)
}

func TestVerifyNotFound(t *testing.T) {
	v, _ := newVerifier(t)
	ctx := context.Background()

	res, err := v.Verify(ctx, "刑法", "第一条", "任何文字")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Classification)
	assert.Equal(t, ReasonLawNotFound, res.Reason)

	res, err = v.Verify(ctx, "公司法", "第九十九条", "任何文字")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Classification)
	assert.Equal(t, ReasonArticleNotFound, res.Reason)

	res, err = v.Verify(ctx, "公司法", "第甲条", "任何文字")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Classification)
	assert.Equal(t, ReasonBadArticle, res.Reason)
}

func TestVerifyAmbiguous(t *testing.T) {
	store := repository.NewMemoryStore()
	saveLaw(t, store, "测试管理条例", "", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		models.Article{Number: "第一条", OrderingIndex: 1, Content: "甲"})
	saveLaw(t, store, "测试管理条例", "", time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC),
		models.Article{Number: "第一条", OrderingIndex: 1, Content: "乙"})

	r := resolver.New(store, nil, resolver.DefaultConfig())
	require.NoError(t, r.Load(context.Background()))
	v := New(r, storeArticles{store}, DefaultThresholds())

	res, err := v.Verify(context.Background(), "测试管理条例", "第一条", "甲")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Classification)
	assert.Equal(t, ReasonAmbiguous, res.Reason)
	assert.Len(t, res.Candidates, 2)
}

func TestBatch(t *testing.T) {
	v, _ := newVerifier(t)

	text := "根据《中华人民共和国公司法》第一条规定：“" + companyArticle1 + "”另见公司法第二条。《民法典》第一条亦有规定，而《中华人民共和国公司法》第九十九条并不存在。"

	out, err := v.Batch(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, 4, out.Total)
	require.Len(t, out.Results, 4)

	assert.Equal(t, Exact, out.Results[0].Classification)
	assert.Equal(t, Unquoted, out.Results[1].Classification)
	assert.Equal(t, "第二条", out.Results[1].ArticleNumber)
	assert.Equal(t, NotFound, out.Results[2].Classification)
	assert.Equal(t, ReasonLawNotFound, out.Results[2].Reason)
	assert.Equal(t, NotFound, out.Results[3].Classification)
	assert.Equal(t, ReasonArticleNotFound, out.Results[3].Reason)

	assert.Equal(t, 1, out.Counts[Exact])
	assert.Equal(t, 1, out.Counts[Unquoted])
	assert.Equal(t, 2, out.Counts[NotFound])

	for i := 1; i < len(out.Results); i++ {
		assert.Less(t, out.Results[i-1].Start, out.Results[i].Start)
	}
}

func TestBatchEmpty(t *testing.T) {
	v, _ := newVerifier(t)

	_, err := v.Batch(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	out, err := v.Batch(context.Background(), "没有任何引用的文字。")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Total)
	assert.Empty(t, out.Results)
}
