package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCCommons/import-bot/pkg/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.RecordUpload(ctx, "A.jpg", "en", store.StatusSuccess, ""))
	require.NoError(t, s.RecordUpload(ctx, "B.jpg", "ar", store.StatusSuccess, ""))
	require.NoError(t, s.RecordUpload(ctx, "C.jpg", "ar", store.StatusFailed, "ratelimited"))
	require.NoError(t, s.RecordPage(ctx, "Anatomy", "en", 2, 1))
	return s
}

func TestSummary(t *testing.T) {
	r := New(seededStore(t))

	summary, err := r.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, store.Stats{TotalUploads: 2, TotalPages: 1}, summary.Total)
	assert.Len(t, summary.ByLanguage, 2)
	require.Len(t, summary.RecentErrs, 1)
	assert.Equal(t, "C.jpg", summary.RecentErrs[0].Filename)
	assert.Equal(t, "ratelimited", summary.RecentErrs[0].Error)
}

func TestSaveWritesJSON(t *testing.T) {
	r := New(seededStore(t))
	path := filepath.Join(t.TempDir(), "reports", "summary.json")

	require.NoError(t, r.Save(context.Background(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var summary Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.Total.TotalUploads)
}
