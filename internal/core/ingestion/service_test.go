package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDocRepo struct {
	docs      map[uuid.UUID]*Document
	createErr error
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{docs: make(map[uuid.UUID]*Document)}
}

func (r *memDocRepo) Create(ctx context.Context, doc *Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.docs[doc.ID] = doc
	return nil
}

func (r *memDocRepo) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return doc, nil
}

func (r *memDocRepo) GetByFilename(ctx context.Context, filename string) (*Document, error) {
	for _, doc := range r.docs {
		if doc.Filename == filename {
			return doc, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memDocRepo) List(ctx context.Context) ([]*Document, error) {
	out := make([]*Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (r *memDocRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount, chunkCount int) error {
	doc, ok := r.docs[id]
	if !ok {
		return errors.New("not found")
	}
	doc.Status = status
	doc.PageCount = pageCount
	doc.ChunkCount = chunkCount
	return nil
}

func (r *memDocRepo) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	doc, ok := r.docs[id]
	if !ok {
		return errors.New("not found")
	}
	doc.Metadata = metadata
	return nil
}

func (r *memDocRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.docs, id)
	return nil
}

type memChunkStore struct {
	inserted   []*Chunk
	insertErr  error
	missing    [][]*Chunk
	updated    map[uuid.UUID][]float32
	deletedDoc []uuid.UUID
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{updated: make(map[uuid.UUID][]float32)}
}

func (s *memChunkStore) InsertChunks(ctx context.Context, chunks []*Chunk) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, chunks...)
	return nil
}

func (s *memChunkStore) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	s.deletedDoc = append(s.deletedDoc, documentID)
	return nil
}

func (s *memChunkStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]*Chunk, error) {
	if len(s.missing) == 0 {
		return nil, nil
	}
	batch := s.missing[0]
	s.missing = s.missing[1:]
	return batch, nil
}

func (s *memChunkStore) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	s.updated[id] = embedding
	return nil
}

type stubExtractor struct {
	pages []Page
	err   error
}

func (e *stubExtractor) ExtractPages(ctx context.Context, path string) ([]Page, error) {
	return e.pages, e.err
}

type stubEmbedder struct {
	err   error
	calls int
}

func (e *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i) + 0.5}
	}
	return out, nil
}

type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pageText(word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", 30))
}

func TestService_IngestPDF(t *testing.T) {
	docs := newMemDocRepo()
	chunks := newMemChunkStore()
	extractor := &stubExtractor{pages: []Page{
		{Number: 1, Text: pageText("alpha")},
		{Number: 2, Text: "tiny"},
		{Number: 3, Text: pageText("gamma")},
	}}
	svc := NewService(docs, chunks, extractor, wordCounter{}, WithLogger(quietLogger()))

	doc, err := svc.IngestPDF(context.Background(), "/data/uploads/Bulletin-113.pdf")
	require.NoError(t, err)

	assert.Equal(t, "Bulletin-113.pdf", doc.Filename)
	assert.Equal(t, StatusCompleted, doc.Status)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, 2, doc.ChunkCount)
	assert.Equal(t, "/data/uploads/Bulletin-113.pdf", doc.Metadata[MetaStoragePath])

	require.Len(t, chunks.inserted, 2)
	first, second := chunks.inserted[0], chunks.inserted[1]
	assert.Equal(t, "Bulletin-113.pdf", first.Source)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 0, first.ChunkIndex)
	assert.Equal(t, 30, first.Tokens)
	// 2ページ目はテキスト量不足でスキップされる
	assert.Equal(t, 3, second.Page)
	assert.Equal(t, 1, second.ChunkIndex)
	assert.Equal(t, doc.ID, first.DocumentID)
}

func TestService_IngestPDFExtractorFailureMarksFailed(t *testing.T) {
	docs := newMemDocRepo()
	svc := NewService(docs, newMemChunkStore(), &stubExtractor{err: errors.New("corrupt xref")}, wordCounter{}, WithLogger(quietLogger()))

	_, err := svc.IngestPDF(context.Background(), "broken.pdf")
	require.Error(t, err)

	all, _ := docs.List(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, StatusFailed, all[0].Status)
}

func TestService_IngestPDFStoreFailureMarksFailed(t *testing.T) {
	docs := newMemDocRepo()
	chunks := newMemChunkStore()
	chunks.insertErr = errors.New("connection refused")
	extractor := &stubExtractor{pages: []Page{{Number: 1, Text: pageText("alpha")}}}
	svc := NewService(docs, chunks, extractor, wordCounter{}, WithLogger(quietLogger()))

	_, err := svc.IngestPDF(context.Background(), "a.pdf")
	require.Error(t, err)

	all, _ := docs.List(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, StatusFailed, all[0].Status)
}

func TestService_IngestPDFAttachesEmbeddings(t *testing.T) {
	chunks := newMemChunkStore()
	extractor := &stubExtractor{pages: []Page{{Number: 1, Text: pageText("alpha")}}}
	embedder := &stubEmbedder{}
	svc := NewService(newMemDocRepo(), chunks, extractor, wordCounter{},
		WithEmbedder(embedder), WithLogger(quietLogger()))

	_, err := svc.IngestPDF(context.Background(), "a.pdf")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.calls)
	require.Len(t, chunks.inserted, 1)
	assert.Equal(t, []float32{0.5}, chunks.inserted[0].Embedding)
}

func TestService_IngestPDFEmbeddingFailureIsNonFatal(t *testing.T) {
	chunks := newMemChunkStore()
	extractor := &stubExtractor{pages: []Page{{Number: 1, Text: pageText("alpha")}}}
	embedder := &stubEmbedder{err: errors.New("quota exceeded")}
	svc := NewService(newMemDocRepo(), chunks, extractor, wordCounter{},
		WithEmbedder(embedder), WithLogger(quietLogger()))

	doc, err := svc.IngestPDF(context.Background(), "a.pdf")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, doc.Status)
	require.Len(t, chunks.inserted, 1)
	assert.Nil(t, chunks.inserted[0].Embedding)
}

type memMirror struct {
	sources []string
	err     error
}

func (m *memMirror) WriteDocument(source string, chunks []*Chunk) error {
	if m.err != nil {
		return m.err
	}
	m.sources = append(m.sources, source)
	return nil
}

func TestService_IngestPDFWritesMirror(t *testing.T) {
	mirror := &memMirror{}
	extractor := &stubExtractor{pages: []Page{{Number: 1, Text: pageText("alpha")}}}
	svc := NewService(newMemDocRepo(), newMemChunkStore(), extractor, wordCounter{},
		WithChunkMirror(mirror), WithLogger(quietLogger()))

	_, err := svc.IngestPDF(context.Background(), "a.pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf"}, mirror.sources)
}

func TestService_IngestPDFMirrorFailureIsNonFatal(t *testing.T) {
	mirror := &memMirror{err: errors.New("disk full")}
	extractor := &stubExtractor{pages: []Page{{Number: 1, Text: pageText("alpha")}}}
	svc := NewService(newMemDocRepo(), newMemChunkStore(), extractor, wordCounter{},
		WithChunkMirror(mirror), WithLogger(quietLogger()))

	doc, err := svc.IngestPDF(context.Background(), "a.pdf")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, doc.Status)
}

func TestService_BackfillEmbeddings(t *testing.T) {
	chunks := newMemChunkStore()
	c1 := &Chunk{ID: uuid.New(), Text: "first"}
	c2 := &Chunk{ID: uuid.New(), Text: "second"}
	c3 := &Chunk{ID: uuid.New(), Text: "third"}
	chunks.missing = [][]*Chunk{{c1, c2}, {c3}}

	svc := NewService(newMemDocRepo(), chunks, &stubExtractor{}, wordCounter{},
		WithEmbedder(&stubEmbedder{}), WithLogger(quietLogger()))

	n, err := svc.BackfillEmbeddings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Len(t, chunks.updated, 3)
	assert.Equal(t, []float32{0.5}, chunks.updated[c1.ID])
}

func TestService_BackfillEmbeddingsRequiresEmbedder(t *testing.T) {
	svc := NewService(newMemDocRepo(), newMemChunkStore(), &stubExtractor{}, wordCounter{}, WithLogger(quietLogger()))

	_, err := svc.BackfillEmbeddings(context.Background())
	assert.Error(t, err)
}

func TestService_DeleteDocumentRemovesChunks(t *testing.T) {
	docs := newMemDocRepo()
	chunks := newMemChunkStore()
	doc := &Document{ID: uuid.New(), Filename: "a.pdf"}
	require.NoError(t, docs.Create(context.Background(), doc))

	svc := NewService(docs, chunks, &stubExtractor{}, wordCounter{}, WithLogger(quietLogger()))
	require.NoError(t, svc.DeleteDocument(context.Background(), doc.ID))

	assert.Equal(t, []uuid.UUID{doc.ID}, chunks.deletedDoc)
	all, _ := docs.List(context.Background())
	assert.Empty(t, all)
}

type stubTx struct {
	docs   DocumentRepository
	chunks ChunkStore
	calls  int
}

func (t *stubTx) WithinTx(ctx context.Context, fn func(DocumentRepository, ChunkStore) error) error {
	t.calls++
	return fn(t.docs, t.chunks)
}

func TestService_DeleteDocumentUsesTransaction(t *testing.T) {
	docs := newMemDocRepo()
	chunks := newMemChunkStore()
	doc := &Document{ID: uuid.New(), Filename: "a.pdf"}
	require.NoError(t, docs.Create(context.Background(), doc))

	tx := &stubTx{docs: docs, chunks: chunks}
	svc := NewService(docs, chunks, &stubExtractor{}, wordCounter{},
		WithTransactor(tx), WithLogger(quietLogger()))

	require.NoError(t, svc.DeleteDocument(context.Background(), doc.ID))

	// 削除はトランザクション境界内のリポジトリ経由で行われる
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, []uuid.UUID{doc.ID}, chunks.deletedDoc)
	all, _ := docs.List(context.Background())
	assert.Empty(t, all)
}

func TestService_UpdateDocumentMetadataMerges(t *testing.T) {
	docs := newMemDocRepo()
	doc := &Document{
		ID:       uuid.New(),
		Filename: "a.pdf",
		Metadata: map[string]any{MetaStoragePath: "/data/a.pdf", "llm_summary": "old"},
	}
	require.NoError(t, docs.Create(context.Background(), doc))

	svc := NewService(docs, newMemChunkStore(), &stubExtractor{}, wordCounter{}, WithLogger(quietLogger()))
	updated, err := svc.UpdateDocumentMetadata(context.Background(), doc.ID, map[string]any{
		"llm_summary": "new",
		MetaPublicURL: "https://docs.example.com/a.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, "/data/a.pdf", updated.Metadata[MetaStoragePath])
	assert.Equal(t, "new", updated.Metadata["llm_summary"])
	assert.Equal(t, "https://docs.example.com/a.pdf", updated.Metadata[MetaPublicURL])
}

func TestMergeMetadata(t *testing.T) {
	existing := map[string]any{"a": 1, "b": 2}
	updates := map[string]any{"b": 3, "c": 4}

	merged := MergeMetadata(existing, updates)

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)
	// 引数は変更されない
	assert.Equal(t, 2, existing["b"])
}
