package chunkfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asfc/doc-chat/internal/core/ingestion"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func seed(t *testing.T, s *Store, source string, texts ...string) {
	t.Helper()
	chunks := make([]*ingestion.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &ingestion.Chunk{
			Source:     source,
			Page:       i + 1,
			ChunkIndex: i,
			Text:       text,
			Tokens:     len(text),
		})
	}
	require.NoError(t, s.WriteDocument(source, chunks))
}

func TestStore_WriteDocumentAndListAll(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "Bulletin-113.pdf", "engine inspection procedure", "torque limits table")
	seed(t, s, "Bulletin-79.pdf", "fuel system overview")

	chunks, err := s.ListAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, chunks, 3)
}

func TestStore_WriteDocumentNamesFileAfterStem(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "Bulletin-113.pdf", "text")

	_, err := os.Stat(filepath.Join(s.dir, "Bulletin-113.jsonl"))
	assert.NoError(t, err)
}

func TestStore_SearchByTextFiltersByTerm(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "a.pdf", "hydraulic pressure limits", "electrical wiring diagram")

	chunks, err := s.SearchByText(context.Background(), "hydraulic system", 10)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "hydraulic pressure limits", chunks[0].Text)
}

func TestStore_SearchByTextNoMatchReturnsAllCapped(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "a.pdf", "one", "two", "three")

	chunks, err := s.SearchByText(context.Background(), "zzzz", 2)
	require.NoError(t, err)

	assert.Len(t, chunks, 2)
}

func TestStore_GetBySource(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "Bulletin-113.pdf", "first", "second")
	seed(t, s, "Bulletin-1130.pdf", "other")

	t.Run("exact match wins over prefix", func(t *testing.T) {
		chunks, err := s.GetBySource(context.Background(), "bulletin-113.pdf")
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})

	t.Run("prefix match", func(t *testing.T) {
		chunks, err := s.GetBySource(context.Background(), "bulletin-113")
		require.NoError(t, err)
		// Bulletin-113.pdf と Bulletin-1130.pdf の両方に前方一致する
		assert.Len(t, chunks, 3)
	})

	t.Run("no match", func(t *testing.T) {
		chunks, err := s.GetBySource(context.Background(), "bulletin-999")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestStore_ListAllSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "good.pdf", "valid chunk")
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "bad.jsonl"), []byte("{not json\n"), 0o644))

	chunks, err := s.ListAll(context.Background())
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "valid chunk", chunks[0].Text)
}

func TestStore_ListAllEmptyDirectory(t *testing.T) {
	s := newTestStore(t)

	chunks, err := s.ListAll(context.Background())
	require.NoError(t, err)

	assert.Empty(t, chunks)
}
