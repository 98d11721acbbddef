package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublatesublate-design/legal-database/config"
	"github.com/sublatesublate-design/legal-database/service"
	"github.com/sublatesublate-design/legal-database/storage"
)

const civilCode = `中华人民共和国民法典
（2020年5月28日第十三届全国人民代表大会第三次会议通过）
第一编 总则
第一章 基本规定
第一条 为了保护民事主体的合法权益，调整民事关系，维护社会和经济秩序，适应中国特色社会主义发展要求，弘扬社会主义核心价值观，根据宪法，制定本法。
第二条 民法调整平等主体的自然人、法人和非法人组织之间的人身关系和财产关系。`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_TYPE", string(storage.TypeLocal))
	t.Setenv("STORAGE_LOCAL_PATH", t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewWiresMemoryStack(t *testing.T) {
	cfg := memoryConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, config.MemoryDatabase, a.StoreName())
	require.NotNil(t, a.Archive)

	report, err := a.Ingest.Ingest(ctx, service.Document{Text: civilCode})
	require.NoError(t, err)
	assert.True(t, report.Created)
	assert.NotEmpty(t, report.ArchivePath)

	res, err := a.Laws.GetArticle(ctx, "民法典", "第二条")
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestApplySeedFile(t *testing.T) {
	cfg := memoryConfig(t)
	ctx := context.Background()

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Ingest.Ingest(ctx, service.Document{Text: civilCode})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "seeds.yaml")
	seeds := `aliases:
  - alias: 民法大典
    law: 中华人民共和国民法典
    type: common_shortname
synonyms:
  - term: 欠钱
    canonical: 债务
`
	require.NoError(t, os.WriteFile(path, []byte(seeds), 0o644))
	require.NoError(t, a.ApplySeedFile(ctx, path))

	res, err := a.Laws.ResolveLaw(ctx, "民法大典", false)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "中华人民共和国民法典", res.Best.Title)
	assert.Equal(t, 1.0, res.Best.Confidence)

	assert.Error(t, a.ApplySeedFile(ctx, filepath.Join(t.TempDir(), "missing.yaml")))
}
