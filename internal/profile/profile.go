package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Weight policies applied when an existing edge is mentioned again.
const (
	WeightPolicyLatest  = "latest"
	WeightPolicyAverage = "average"
	WeightPolicyDecay   = "decay"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where soulmap stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your soulmap instance.
	InstanceURL string
	// DefaultUserID is the placeholder owner used when a request carries no user id.
	DefaultUserID string

	// AI Configuration
	AIEnabled             bool   // SOULMAP_AI_ENABLED
	AIEmbeddingProvider   string // SOULMAP_AI_EMBEDDING_PROVIDER (default: openai)
	AIEmbeddingModel      string // SOULMAP_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingDimensions int    // SOULMAP_AI_EMBEDDING_DIMENSIONS (default: 1536)
	AILLMProvider         string // SOULMAP_AI_LLM_PROVIDER (default: openai)
	AILLMModel            string // SOULMAP_AI_LLM_MODEL (default: gpt-4o-mini)
	AIOpenAIAPIKey        string // SOULMAP_AI_OPENAI_API_KEY
	AIOpenAIBaseURL       string // SOULMAP_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AISiliconFlowAPIKey   string // SOULMAP_AI_SILICONFLOW_API_KEY
	AISiliconFlowBaseURL  string // SOULMAP_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIDeepSeekAPIKey      string // SOULMAP_AI_DEEPSEEK_API_KEY
	AIDeepSeekBaseURL     string // SOULMAP_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AIOllamaBaseURL       string // SOULMAP_AI_OLLAMA_BASE_URL (default: http://localhost:11434/v1)

	// Graph Configuration
	GraphWeightPolicy        string  // SOULMAP_GRAPH_WEIGHT_POLICY (latest|average|decay, default: latest)
	GraphDecayFactor         float64 // SOULMAP_GRAPH_DECAY_FACTOR (default: 0.5)
	GraphMaxConcurrentMerges int     // SOULMAP_GRAPH_MAX_CONCURRENT_EXTRACTIONS (default: 4)

	// Background jobs
	EmbeddingBackfillInterval time.Duration // SOULMAP_EMBEDDING_BACKFILL_INTERVAL (default: 2m)

	// Cache Configuration
	CacheRedisAddr     string // SOULMAP_CACHE_REDIS_ADDR (empty disables the L2 cache)
	CacheRedisPassword string // SOULMAP_CACHE_REDIS_PASSWORD
	CacheRedisDB       int    // SOULMAP_CACHE_REDIS_DB
	CacheRedisPrefix   string // SOULMAP_CACHE_REDIS_PREFIX (default: soulmap:)

	// FinishRateLimit is the sustained finish requests per second allowed per client.
	FinishRateLimit float64 // SOULMAP_FINISH_RATE_LIMIT (default: 2)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and at least one API key or base URL is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIOpenAIAPIKey != "" || p.AISiliconFlowAPIKey != "" || p.AIDeepSeekAPIKey != "" || p.AIOllamaBaseURL != "")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid float env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration env value", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

// FromEnv loads AI, graph and cache configuration from environment variables.
// Server flags (mode, port, driver, dsn...) are bound by the command line.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("SOULMAP_AI_ENABLED") == "true"
	p.AIEmbeddingProvider = getEnvOrDefault("SOULMAP_AI_EMBEDDING_PROVIDER", "openai")
	p.AIEmbeddingModel = getEnvOrDefault("SOULMAP_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	p.AIEmbeddingDimensions = getIntEnvOrDefault("SOULMAP_AI_EMBEDDING_DIMENSIONS", 1536)
	p.AILLMProvider = getEnvOrDefault("SOULMAP_AI_LLM_PROVIDER", "openai")
	p.AILLMModel = getEnvOrDefault("SOULMAP_AI_LLM_MODEL", "gpt-4o-mini")
	p.AIOpenAIAPIKey = os.Getenv("SOULMAP_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("SOULMAP_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AISiliconFlowAPIKey = os.Getenv("SOULMAP_AI_SILICONFLOW_API_KEY")
	p.AISiliconFlowBaseURL = getEnvOrDefault("SOULMAP_AI_SILICONFLOW_BASE_URL", "https://api.siliconflow.cn/v1")
	p.AIDeepSeekAPIKey = os.Getenv("SOULMAP_AI_DEEPSEEK_API_KEY")
	p.AIDeepSeekBaseURL = getEnvOrDefault("SOULMAP_AI_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	p.AIOllamaBaseURL = os.Getenv("SOULMAP_AI_OLLAMA_BASE_URL")

	p.GraphWeightPolicy = getEnvOrDefault("SOULMAP_GRAPH_WEIGHT_POLICY", WeightPolicyLatest)
	p.GraphDecayFactor = getFloatEnvOrDefault("SOULMAP_GRAPH_DECAY_FACTOR", 0.5)
	p.GraphMaxConcurrentMerges = getIntEnvOrDefault("SOULMAP_GRAPH_MAX_CONCURRENT_EXTRACTIONS", 4)

	p.EmbeddingBackfillInterval = getDurationEnvOrDefault("SOULMAP_EMBEDDING_BACKFILL_INTERVAL", 2*time.Minute)

	p.CacheRedisAddr = os.Getenv("SOULMAP_CACHE_REDIS_ADDR")
	p.CacheRedisPassword = os.Getenv("SOULMAP_CACHE_REDIS_PASSWORD")
	p.CacheRedisDB = getIntEnvOrDefault("SOULMAP_CACHE_REDIS_DB", 0)
	p.CacheRedisPrefix = getEnvOrDefault("SOULMAP_CACHE_REDIS_PREFIX", "soulmap:")

	p.FinishRateLimit = getFloatEnvOrDefault("SOULMAP_FINISH_RATE_LIMIT", 2)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "soulmap")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/soulmap"
		}
	}

	switch p.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.Driver == "sqlite" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("soulmap_%s.db", p.Mode))
		}
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	if p.DefaultUserID == "" {
		p.DefaultUserID = "default-user"
	}

	switch p.GraphWeightPolicy {
	case "":
		p.GraphWeightPolicy = WeightPolicyLatest
	case WeightPolicyLatest, WeightPolicyAverage, WeightPolicyDecay:
	default:
		return errors.Errorf("unknown graph weight policy %q", p.GraphWeightPolicy)
	}
	if p.GraphWeightPolicy == WeightPolicyDecay && (p.GraphDecayFactor <= 0 || p.GraphDecayFactor > 1) {
		return errors.Errorf("graph decay factor must be in (0, 1], got %v", p.GraphDecayFactor)
	}

	return nil
}
