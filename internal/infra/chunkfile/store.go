package chunkfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/asfc/doc-chat/internal/core/ingestion"
	"github.com/asfc/doc-chat/internal/core/retrieval"
)

// chunkLine はJSONLファイル1行分のチャンク表現
type chunkLine struct {
	Source     string `json:"source"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Tokens     int    `json:"tokens"`
}

// Store はドキュメントごとのJSONLファイルにチャンクを保持する。
// データベースが利用できない環境での読み取り専用フォールバック、
// および取り込み結果のローカル控えとして使う。
type Store struct {
	dir    string
	logger *slog.Logger
}

// Option は Store のオプション設定
type Option func(*Store)

// WithLogger は Store にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しい Store を作成する
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteDocument はドキュメント1件分のチャンクをJSONLファイルへ書き出す。
// ファイル名はソース名の拡張子を除いたものに .jsonl を付けたもの。
func (s *Store) WriteDocument(source string, chunks []*ingestion.Chunk) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		line := chunkLine{
			Source:     c.Source,
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Tokens:     c.Tokens,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode chunk: %w", err)
		}
	}

	path := filepath.Join(s.dir, stem(source)+".jsonl")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write chunk file: %w", err)
	}

	return nil
}

// SearchByText はクエリ語を1つ以上含むチャンクを返す。
// 一致がない場合は全チャンクを候補として返し、limit で打ち切る。
func (s *Store) SearchByText(ctx context.Context, query string, limit int) ([]*retrieval.Chunk, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	var matched []*retrieval.Chunk
	for _, c := range all {
		text := strings.ToLower(c.Text)
		for _, term := range terms {
			if strings.Contains(text, term) {
				matched = append(matched, c)
				break
			}
		}
	}

	if len(matched) == 0 {
		matched = all
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// GetBySource はソース名でチャンクを取得する。
// 完全一致、前方一致、「.pdf を補った前方一致」の順に試す。
func (s *Store) GetBySource(ctx context.Context, source string) ([]*retrieval.Chunk, error) {
	all, err := s.loadAll()
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(source)
	match := func(keep func(string) bool) []*retrieval.Chunk {
		var out []*retrieval.Chunk
		for _, c := range all {
			if keep(strings.ToLower(c.Source)) {
				out = append(out, c)
			}
		}
		return out
	}

	if chunks := match(func(s string) bool { return s == want }); len(chunks) > 0 {
		return chunks, nil
	}
	if chunks := match(func(s string) bool { return strings.HasPrefix(s, want) }); len(chunks) > 0 {
		return chunks, nil
	}
	return match(func(s string) bool { return strings.HasPrefix(s, want+".pdf") }), nil
}

// GetByDocumentID はチャンクファイルでは利用できない。
// ドキュメントIDはデータベース側にのみ存在する。
func (s *Store) GetByDocumentID(ctx context.Context, id uuid.UUID) ([]*retrieval.Chunk, error) {
	return nil, fmt.Errorf("chunk files do not track document ids")
}

// ListAll は全チャンクファイルの全チャンクを返す
func (s *Store) ListAll(ctx context.Context) ([]*retrieval.Chunk, error) {
	return s.loadAll()
}

func (s *Store) loadAll() ([]*retrieval.Chunk, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk files: %w", err)
	}

	var chunks []*retrieval.Chunk
	for _, path := range paths {
		fileChunks, err := s.loadFile(path)
		if err != nil {
			// 壊れたファイルは無視して残りを提供する
			s.logger.Warn("skipping unreadable chunk file", "path", path, "error", err)
			continue
		}
		chunks = append(chunks, fileChunks...)
	}

	return chunks, nil
}

func (s *Store) loadFile(path string) ([]*retrieval.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []*retrieval.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var cl chunkLine
		if err := json.Unmarshal(line, &cl); err != nil {
			return nil, fmt.Errorf("malformed chunk line: %w", err)
		}

		chunks = append(chunks, &retrieval.Chunk{
			Source:     cl.Source,
			Page:       cl.Page,
			ChunkIndex: cl.ChunkIndex,
			Text:       cl.Text,
			Tokens:     cl.Tokens,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return chunks, nil
}

func stem(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source))
}

// インターフェース実装の確認
var _ retrieval.Repository = (*Store)(nil)
