package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultBaseURL はOpenRouter APIのデフォルトエンドポイント
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel はデフォルトで使用するチャットモデル
	DefaultModel = "qwen/qwen-2.5-72b-instruct:free"

	// DefaultEmbeddingModel はデフォルトのEmbeddingモデル
	DefaultEmbeddingModel = "openai/text-embedding-3-small"

	// DefaultTopK は検索で取得するチャンク数のデフォルト値
	DefaultTopK = 3

	// DefaultMinCallInterval はLLM呼び出し間の最小間隔のデフォルト値
	DefaultMinCallInterval = 5 * time.Second

	// DefaultTemperature はチャット補完のデフォルト温度
	DefaultTemperature = 0.7

	// DefaultMaxTokens は1回の補完で生成する最大トークン数のデフォルト値
	DefaultMaxTokens = 4000
)

// Config はアプリケーション全体の設定を保持する
type Config struct {
	// OpenRouter（LLMプロバイダ）
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	EmbeddingModel    string
	Temperature       float64
	MaxTokens         int
	MinCallInterval   time.Duration

	// データベース
	DatabaseURL string

	// 検索
	TopK              int
	UseSemanticSearch bool

	// ローカルチャンクストア（DB障害時のフォールバック）
	ChunkDir string

	// HTTPサーバ
	ListenAddr string
}

// Load は .env ファイルと環境変数から設定を読み込む
// envFile が存在しない場合は環境変数のみを使用する
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", DefaultBaseURL),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", DefaultModel),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		Temperature:       getEnvFloat("LLM_TEMPERATURE", DefaultTemperature),
		MaxTokens:         getEnvInt("LLM_MAX_TOKENS", DefaultMaxTokens),
		MinCallInterval:   DefaultMinCallInterval,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		TopK:              getEnvInt("TOP_K", DefaultTopK),
		UseSemanticSearch: getEnvBool("USE_SEMANTIC_SEARCH", true),
		ChunkDir:          getEnv("CHUNK_DIR", "data/chunks"),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
	}

	if v := os.Getenv("MIN_CALL_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_CALL_INTERVAL_SECONDS: %w", err)
		}
		cfg.MinCallInterval = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、未設定の場合はデフォルト値を返す
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
