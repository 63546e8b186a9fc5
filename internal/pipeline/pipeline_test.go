package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/zsr/internal/cache"
	"github.com/ppiankov/zsr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type stubLooker struct {
	calls    int
	verdicts model.Results
}

func (s *stubLooker) Lookup(ctx context.Context, urls []string) (model.Results, error) {
	s.calls++
	out := make(model.Results, len(urls))
	for _, u := range urls {
		if v, ok := s.verdicts[u]; ok {
			out[u] = v
		} else {
			out[u] = model.Verdict{Categories: []string{}}
		}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, looker *stubLooker) *Pipeline {
	t.Helper()
	cfg := model.DefaultConfig()
	p := newPipeline(cfg, cache.NewMemoryStore(), looker, zap.NewNop())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestResolveList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(list, []byte("evil.com:443/\n\nnews.com\nevil.com\n"), 0644))

	looker := &stubLooker{verdicts: model.Results{
		"evil.com": {Threat: "Phishing", Categories: []string{}},
	}}
	p := newTestPipeline(t, looker)

	jsonOut := filepath.Join(dir, "out.json")
	excelOut := filepath.Join(dir, "out.xlsx")
	res, err := p.ResolveList(context.Background(), list, jsonOut, excelOut)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Inputs)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 1, looker.calls)
	assert.Equal(t, "Phishing", res.Results["evil.com"].Threat)

	data, err := os.ReadFile(jsonOut)
	require.NoError(t, err)
	var exported map[string]model.Verdict
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Len(t, exported, 2)

	_, err = os.Stat(excelOut)
	assert.NoError(t, err)

	// second run is served from the store
	res, err = p.ResolveList(context.Background(), list, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, looker.calls)
	assert.Equal(t, 2, res.Stats.CacheHits)
}

func TestResolveList_MissingFile(t *testing.T) {
	p := newTestPipeline(t, &stubLooker{})
	_, err := p.ResolveList(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), "", "")
	assert.Error(t, err)
}

func TestReconcileWorkbook_DefaultSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cse.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "SSL Dest Groups"))
	require.NoError(t, f.SetCellValue("SSL Dest Groups", "A1", "Entries"))
	require.NoError(t, f.SetCellValue("SSL Dest Groups", "B1", "zoom.us/"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	looker := &stubLooker{verdicts: model.Results{
		"zoom.us": {Categories: []string{"GLOBAL_INT_ZOOM"}},
	}}
	p := newTestPipeline(t, looker)

	summary, err := p.ReconcileWorkbook(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sheets, "missing default sheet is skipped")
	assert.Equal(t, 1, summary.Prebuilt)
}

func TestNewPipeline(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Cache.Backend = model.BackendMemory

	p, err := NewPipeline(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Lookup.BatchSize = 0

	_, err := NewPipeline(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}
