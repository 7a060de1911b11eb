package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

const (
	// DefaultTopK は取得チャンク数のデフォルト値
	DefaultTopK = 3

	// candidateMultiplier はスコア付け前に取得する候補プールの倍率
	candidateMultiplier = 2
)

// Retriever は質問に対して文脈チャンクを選択する。
// primary が失敗した場合は fallback（ファイルストア等）へ退避する。
// 検索の失敗は呼び出し側へエラーとして伝播せず、空の結果として扱う。
type Retriever struct {
	primary  Repository
	fallback Repository
	logger   *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithFallback はデグレード時に使用するセカンダリストアを設定する
func WithFallback(repo Repository) RetrieverOption {
	return func(r *Retriever) {
		r.fallback = repo
	}
}

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する。primary は nil でもよく、
// その場合は fallback のみで動作する（DB未接続のデグレード構成）。
func NewRetriever(primary Repository, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		primary: primary,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve は質問に関連するチャンクを返す。
// 質問が特定文書を指す場合は全文書モード（topKは無視、ページ昇順）、
// それ以外はキーワード一致スコアによる上位topK件を返す。
// 結果が空の場合、呼び出し側は「文脈なし」として扱うこと。
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) *Result {
	if topK <= 0 {
		topK = DefaultTopK
	}

	target := DetectTargetDocument(question)
	if target != "" {
		r.logger.Info("bulletin query detected, loading full document",
			"target", target,
		)
		return &Result{
			Chunks:         r.retrieveFullDocument(ctx, target),
			TargetDocument: target,
		}
	}

	return &Result{
		Chunks: r.retrieveScored(ctx, question, topK),
	}
}

// retrieveFullDocument は対象文書の全チャンクをページ昇順で返す
func (r *Retriever) retrieveFullDocument(ctx context.Context, target string) []*Chunk {
	var chunks []*Chunk

	if r.primary != nil {
		var err error
		chunks, err = r.primary.GetBySource(ctx, target)
		if err != nil {
			r.logger.Warn("primary store failed, falling back",
				"target", target,
				"error", err,
			)
			chunks = nil
		}
	}

	if chunks == nil && r.fallback != nil {
		var err error
		chunks, err = r.fallback.GetBySource(ctx, target)
		if err != nil {
			r.logger.Error("fallback store failed", "target", target, "error", err)
			return nil
		}
	}

	chunks = dropEmptyText(chunks)

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Page < chunks[j].Page
	})

	r.logger.Info("full document retrieval completed",
		"target", target,
		"chunks", len(chunks),
	)

	return chunks
}

// retrieveScored はキーワード一致数によるスコア付け検索を行う
func (r *Retriever) retrieveScored(ctx context.Context, question string, topK int) []*Chunk {
	candidates := r.loadCandidates(ctx, question, topK*candidateMultiplier)
	candidates = dropEmptyText(candidates)
	if len(candidates) == 0 {
		r.logger.Warn("no candidate chunks found", "question", truncate(question, 80))
		return nil
	}

	terms := distinctTerms(question)

	scored := make([]scoredChunk, 0, len(candidates))
	for _, c := range candidates {
		textLower := strings.ToLower(c.Text)
		score := 0
		for _, term := range terms {
			if strings.Contains(textLower, term) {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, scoredChunk{chunk: c, score: score})
		}
	}

	// 一致なしでも候補があれば先頭topK件を返す（空結果を避けるベストエフォート）
	if len(scored) == 0 {
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		r.logger.Info("no scoring matches, returning unscored candidates",
			"chunks", len(candidates),
		)
		return candidates
	}

	// スコア降順。同点は候補の出現順を維持する。
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	result := make([]*Chunk, len(scored))
	topScores := make([]int, len(scored))
	for i, sc := range scored {
		result[i] = sc.chunk
		topScores[i] = sc.score
	}

	r.logger.Info("scored retrieval completed",
		"chunks", len(result),
		"topScores", topScores,
	)

	return result
}

// loadCandidates は候補プールを取得する。primaryの失敗時はfallbackの
// 全チャンク走査へ退避する（デグレードだが致命的ではない）。
func (r *Retriever) loadCandidates(ctx context.Context, question string, limit int) []*Chunk {
	if r.primary != nil {
		candidates, err := r.primary.SearchByText(ctx, question, limit)
		if err == nil {
			return candidates
		}
		r.logger.Warn("primary text search failed, falling back to full scan",
			"error", err,
		)
	}

	if r.fallback == nil {
		return nil
	}

	candidates, err := r.fallback.ListAll(ctx)
	if err != nil {
		r.logger.Error("fallback scan failed", "error", err)
		return nil
	}
	return candidates
}

// distinctTerms は質問を小文字化し、空白区切りの重複なし語彙に分解する
func distinctTerms(question string) []string {
	fields := strings.Fields(strings.ToLower(question))
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// dropEmptyText は本文が空のチャンクを除外する
func dropEmptyText(chunks []*Chunk) []*Chunk {
	result := chunks[:0:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			result = append(result, c)
		}
	}
	return result
}

// truncate はログ出力用に文字列を最大n文字へ切り詰める
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
