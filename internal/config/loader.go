package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "aegis"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "AEGIS"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg = expandEnvVars(cfg)

	return cfg, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings
// that commonly carry secrets injected via environment (API keys,
// webhook secrets, connection strings).
func expandEnvVars(cfg Config) Config {
	for name, provider := range cfg.Providers {
		provider.APIKey = expandEnvString(provider.APIKey)
		provider.Model = expandEnvString(provider.Model)
		cfg.Providers[name] = provider
	}

	cfg.Git.WorkDir = expandEnvString(cfg.Git.WorkDir)
	cfg.Store.Path = expandEnvString(cfg.Store.Path)
	cfg.Queue.URL = expandEnvString(cfg.Queue.URL)
	cfg.Platforms.GitHub.WebhookSecret = expandEnvString(cfg.Platforms.GitHub.WebhookSecret)
	cfg.Platforms.GitHub.APIToken = expandEnvString(cfg.Platforms.GitHub.APIToken)
	cfg.Platforms.Gitea.WebhookSecret = expandEnvString(cfg.Platforms.Gitea.WebhookSecret)
	cfg.Platforms.Gitea.APIToken = expandEnvString(cfg.Platforms.Gitea.APIToken)

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redaction.enabled", true)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", defaultStorePath())

	v.SetDefault("providers.openai.enabled", false)
	v.SetDefault("providers.openai.model", "gpt-4o")
	v.SetDefault("providers.anthropic.enabled", false)
	v.SetDefault("providers.anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("providers.gemini.enabled", false)
	v.SetDefault("providers.gemini.model", "gemini-pro")
	v.SetDefault("providers.ollama.enabled", false)
	v.SetDefault("providers.ollama.model", "llama2")
	v.SetDefault("providers.static.enabled", true)
	v.SetDefault("providers.static.model", "static-v1")

	v.SetDefault("observability.logging.enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.redactAPIKeys", true)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.addr", ":9090")

	v.SetDefault("review.severityThreshold", "low")
	v.SetDefault("review.maxContextMatches", 5)

	// Queue defaults mirror a five-minute hard task time limit, a 60s
	// initial redelivery backoff capped at 600s, and single-message
	// prefetch so one slow review doesn't starve its worker's siblings.
	v.SetDefault("queue.url", "nats://localhost:4222")
	v.SetDefault("queue.streamName", "AEGIS_TASKS")
	v.SetDefault("queue.queues", []string{"code_review", "indexing", "feedback", "default"})
	v.SetDefault("queue.ackWait", "5m")
	v.SetDefault("queue.maxDeliver", 4) // initial attempt + 3 retries
	v.SetDefault("queue.prefetchCount", 1)
	v.SetDefault("queue.maxTasksPerChild", 100)
	v.SetDefault("queue.resultTTL", "24h")

	v.SetDefault("rag.enabled", true)
	v.SetDefault("rag.topK", 5)
	v.SetDefault("rag.similarityThreshold", 0.75)
	v.SetDefault("rag.embeddingModel", "text-embedding-3-small")
	v.SetDefault("rag.embeddingDimensions", 1536)

	v.SetDefault("rlhf.enabled", true)
	v.SetDefault("rlhf.similarityThreshold", 0.85)
	v.SetDefault("rlhf.initialConfidence", 0.5)
	v.SetDefault("rlhf.reinforcementIncrement", 0.1)
	v.SetDefault("rlhf.expiryDays", 90)
	v.SetDefault("rlhf.minConfidenceToSuppress", 0.7)

	v.SetDefault("retention.feedbackRecordDays", 365)
	v.SetDefault("retention.expiredConstraintSweepHour", 1)
	v.SetDefault("retention.taskResultHours", 24)

	v.SetDefault("degradation.failureThreshold", 5)
	v.SetDefault("degradation.halfOpenMaxCalls", 2)
	v.SetDefault("degradation.openStateTimeout", "30s")

	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.serverName", "aegis")
	v.SetDefault("mcp.serverVersion", "0.1.0")

	v.SetDefault("platforms.github.botUsername", "aegis-review[bot]")
	v.SetDefault("platforms.gitea.botUsername", "aegis-review")

	v.SetDefault("gateway.addr", ":8080")
	v.SetDefault("gateway.webhookMaxBodyBytes", int64(5<<20)) // 5MiB
	v.SetDefault("gateway.requireSignature", true)

	v.SetDefault("scheduler.constraintSweepCron", "0 * * * *")
	v.SetDefault("scheduler.metricAggregationCron", "*/15 * * * *")
	v.SetDefault("scheduler.periodicReindexCron", "0 3 * * *")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./aegis.db"
	}
	return filepath.Join(home, ".config", "aegis", "aegis.db")
}
