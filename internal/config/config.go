package config

// Config represents the full application configuration shared by the
// gateway, worker, and scheduler processes.
type Config struct {
	Providers     map[string]ProviderConfig `yaml:"providers"`
	HTTP          HTTPConfig                `yaml:"http"`
	Git           GitConfig                 `yaml:"git"`
	Budget        BudgetConfig              `yaml:"budget"`
	Redaction     RedactionConfig           `yaml:"redaction"`
	Store         StoreConfig               `yaml:"store"`
	Observability ObservabilityConfig       `yaml:"observability"`
	Review        ReviewConfig              `yaml:"review"`
	Platforms     PlatformsConfig           `yaml:"platforms"`
	Queue         QueueConfig               `yaml:"queue"`
	RAG           RAGConfig                 `yaml:"rag"`
	RLHF          RLHFConfig                `yaml:"rlhf"`
	Retention     RetentionConfig           `yaml:"retention"`
	Degradation   DegradationConfig         `yaml:"degradation"`
	MCP           MCPConfig                 `yaml:"mcp"`
	Indexer       IndexerConfig             `yaml:"indexer"`
	Gateway       GatewayConfig             `yaml:"gateway"`
	Scheduler     SchedulerConfig           `yaml:"scheduler"`
}

// GatewayConfig configures the ingress HTTP server (C11): the webhook,
// feedback, indexing-trigger, task-status, MCP manifest, and metrics
// endpoints.
type GatewayConfig struct {
	Addr                string `yaml:"addr"`
	WebhookMaxBodyBytes int64  `yaml:"webhookMaxBodyBytes"`
	RequireSignature    bool   `yaml:"requireSignature"`
}

// SchedulerConfig configures the three cron-driven background jobs
// (C13): the expired-constraint sweep, the per-repo metric aggregation
// pass, and the periodic re-index trigger. Expressions are standard
// five-field cron syntax, evaluated in the scheduler process's local
// time.
type SchedulerConfig struct {
	ConstraintSweepCron   string `yaml:"constraintSweepCron"`
	MetricAggregationCron string `yaml:"metricAggregationCron"`
	PeriodicReindexCron   string `yaml:"periodicReindexCron"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`

	Timeout        *string `yaml:"timeout,omitempty"`
	MaxRetries     *int    `yaml:"maxRetries,omitempty"`
	InitialBackoff *string `yaml:"initialBackoff,omitempty"`
	MaxBackoff     *string `yaml:"maxBackoff,omitempty"`
}

// HTTPConfig holds global HTTP client settings for outbound LLM,
// embedder, and platform-adapter calls.
type HTTPConfig struct {
	Timeout           string  `yaml:"timeout"`
	MaxRetries        int     `yaml:"maxRetries"`
	InitialBackoff    string  `yaml:"initialBackoff"`
	MaxBackoff        string  `yaml:"maxBackoff"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
}

// GitConfig configures the indexer's clone workspace.
type GitConfig struct {
	WorkDir string `yaml:"workDir"`
}

type BudgetConfig struct {
	HardCapUSD        float64  `yaml:"hardCapUSD"`
	DegradationPolicy []string `yaml:"degradationPolicy"`
}

type RedactionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	DenyGlobs  []string `yaml:"denyGlobs"`
	AllowGlobs []string `yaml:"allowGlobs"`
}

// StoreConfig configures the SQLite-backed knowledge/constraint/feedback store.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Level         string `yaml:"level"`  // debug, info, error
	Format        string `yaml:"format"` // json, human
	RedactAPIKeys bool   `yaml:"redactAPIKeys"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ReviewConfig configures the default review behavior applied when a
// task doesn't override it.
type ReviewConfig struct {
	Instructions      string `yaml:"instructions"`
	DefaultPersona    string `yaml:"defaultPersona"`
	SeverityThreshold string `yaml:"severityThreshold"`
	MaxContextMatches int    `yaml:"maxContextMatches"`
}

// PlatformsConfig configures the two git-forge adapters.
type PlatformsConfig struct {
	GitHub PlatformCredentials `yaml:"github"`
	Gitea  PlatformCredentials `yaml:"gitea"`
}

// PlatformCredentials holds the webhook secret and API token for a forge.
type PlatformCredentials struct {
	WebhookSecret string `yaml:"webhookSecret"`
	APIToken      string `yaml:"apiToken"`
	BaseURL       string `yaml:"baseURL"`
	BotUsername   string `yaml:"botUsername"`
}

// QueueConfig configures the NATS JetStream task queue.
type QueueConfig struct {
	URL              string   `yaml:"url"`
	StreamName       string   `yaml:"streamName"`
	Queues           []string `yaml:"queues"`
	AckWait          string   `yaml:"ackWait"`
	MaxDeliver       int      `yaml:"maxDeliver"`
	PrefetchCount    int      `yaml:"prefetchCount"`
	MaxTasksPerChild int      `yaml:"maxTasksPerChild"`
	ResultTTL        string   `yaml:"resultTTL"`
}

// RAGConfig configures the knowledge-store retrieval step.
type RAGConfig struct {
	Enabled             bool    `yaml:"enabled"`
	TopK                int     `yaml:"topK"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	EmbeddingModel      string  `yaml:"embeddingModel"`
	EmbeddingDimensions int     `yaml:"embeddingDimensions"`

	// EmbeddingProvider names the entry in Config.Providers supplying the
	// embedder's API key and retry/timeout overrides, the same way an
	// LLM review provider is looked up. Defaults to "openai".
	EmbeddingProvider string `yaml:"embeddingProvider"`
	// EmbeddingBaseURL overrides the embedder's API base URL (for
	// self-hosted or OpenAI-compatible embedding endpoints).
	EmbeddingBaseURL string `yaml:"embeddingBaseURL"`
}

// RLHFConfig configures the learned-constraint suppression step.
type RLHFConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	SimilarityThreshold      float64 `yaml:"similarityThreshold"`
	InitialConfidence        float64 `yaml:"initialConfidence"`
	ReinforcementIncrement   float64 `yaml:"reinforcementIncrement"`
	ExpiryDays               int     `yaml:"expiryDays"`
	MinConfidenceToSuppress  float64 `yaml:"minConfidenceToSuppress"`
}

// RetentionConfig configures scheduled data-lifecycle cleanup.
type RetentionConfig struct {
	FeedbackRecordDays    int `yaml:"feedbackRecordDays"`
	ExpiredConstraintSweepHour int `yaml:"expiredConstraintSweepHour"`
	TaskResultHours       int `yaml:"taskResultHours"`
}

// DegradationConfig configures the circuit breakers guarding the LLM,
// knowledge/constraint store, and task queue dependencies.
type DegradationConfig struct {
	FailureThreshold uint32 `yaml:"failureThreshold"`
	HalfOpenMaxCalls uint32 `yaml:"halfOpenMaxCalls"`
	OpenStateTimeout string `yaml:"openStateTimeout"`
}

// IndexerConfig configures the clone/walk/chunk stages of the
// repository indexer (C8).
type IndexerConfig struct {
	ChunkSizeChars    int `yaml:"chunkSizeChars"`
	ChunkOverlapChars int `yaml:"chunkOverlapChars"`
	MaxFileSizeBytes  int64 `yaml:"maxFileSizeBytes"`
	CloneTimeout      string `yaml:"cloneTimeout"`
}

// MCPConfig configures the Model Context Protocol manifest endpoint.
type MCPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerName  string `yaml:"serverName"`
	ServerVersion string `yaml:"serverVersion"`
}

// Merge combines multiple configuration instances, prioritising the latter ones.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base

	result.HTTP = chooseHTTP(base.HTTP, overlay.HTTP)
	result.Git = chooseGit(base.Git, overlay.Git)
	result.Budget = chooseBudget(base.Budget, overlay.Budget)
	result.Redaction = chooseRedaction(base.Redaction, overlay.Redaction)
	result.Store = chooseStore(base.Store, overlay.Store)
	result.Observability = chooseObservability(base.Observability, overlay.Observability)
	result.Review = chooseReview(base.Review, overlay.Review)
	result.Platforms = choosePlatforms(base.Platforms, overlay.Platforms)
	result.Queue = chooseQueue(base.Queue, overlay.Queue)
	result.RAG = chooseRAG(base.RAG, overlay.RAG)
	result.RLHF = chooseRLHF(base.RLHF, overlay.RLHF)
	result.Retention = chooseRetention(base.Retention, overlay.Retention)
	result.Degradation = chooseDegradation(base.Degradation, overlay.Degradation)
	result.MCP = chooseMCP(base.MCP, overlay.MCP)
	result.Indexer = chooseIndexer(base.Indexer, overlay.Indexer)
	result.Gateway = chooseGateway(base.Gateway, overlay.Gateway)
	result.Scheduler = chooseScheduler(base.Scheduler, overlay.Scheduler)
	result.Providers = mergeProviders(base.Providers, overlay.Providers)

	return result
}

func mergeProviders(base, overlay map[string]ProviderConfig) map[string]ProviderConfig {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]ProviderConfig, len(base)+len(overlay))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range overlay {
		result[key] = value
	}
	return result
}

func chooseGit(base, overlay GitConfig) GitConfig {
	if overlay.WorkDir != "" {
		return overlay
	}
	return base
}

func chooseHTTP(base, overlay HTTPConfig) HTTPConfig {
	if overlay.Timeout != "" || overlay.MaxRetries != 0 || overlay.InitialBackoff != "" || overlay.MaxBackoff != "" || overlay.BackoffMultiplier != 0 {
		return overlay
	}
	return base
}

func chooseBudget(base, overlay BudgetConfig) BudgetConfig {
	if overlay.HardCapUSD != 0 || len(overlay.DegradationPolicy) > 0 {
		return overlay
	}
	return base
}

func chooseRedaction(base, overlay RedactionConfig) RedactionConfig {
	if overlay.Enabled || len(overlay.DenyGlobs) > 0 || len(overlay.AllowGlobs) > 0 {
		return overlay
	}
	return base
}

func chooseStore(base, overlay StoreConfig) StoreConfig {
	if overlay.Enabled || overlay.Path != "" {
		return overlay
	}
	return base
}

func chooseObservability(base, overlay ObservabilityConfig) ObservabilityConfig {
	result := base

	if overlay.Logging.Enabled || overlay.Logging.Level != "" || overlay.Logging.Format != "" {
		result.Logging = overlay.Logging
	}
	if overlay.Metrics.Enabled || overlay.Metrics.Addr != "" {
		result.Metrics = overlay.Metrics
	}

	return result
}

func chooseReview(base, overlay ReviewConfig) ReviewConfig {
	result := base

	if overlay.Instructions != "" {
		result.Instructions = overlay.Instructions
	}
	if overlay.DefaultPersona != "" {
		result.DefaultPersona = overlay.DefaultPersona
	}
	if overlay.SeverityThreshold != "" {
		result.SeverityThreshold = overlay.SeverityThreshold
	}
	if overlay.MaxContextMatches != 0 {
		result.MaxContextMatches = overlay.MaxContextMatches
	}

	return result
}

func choosePlatformCredentials(base, overlay PlatformCredentials) PlatformCredentials {
	if overlay.WebhookSecret != "" || overlay.APIToken != "" || overlay.BaseURL != "" || overlay.BotUsername != "" {
		return overlay
	}
	return base
}

func choosePlatforms(base, overlay PlatformsConfig) PlatformsConfig {
	return PlatformsConfig{
		GitHub: choosePlatformCredentials(base.GitHub, overlay.GitHub),
		Gitea:  choosePlatformCredentials(base.Gitea, overlay.Gitea),
	}
}

func chooseQueue(base, overlay QueueConfig) QueueConfig {
	if overlay.URL != "" || overlay.StreamName != "" || len(overlay.Queues) > 0 || overlay.AckWait != "" ||
		overlay.MaxDeliver != 0 || overlay.PrefetchCount != 0 || overlay.MaxTasksPerChild != 0 || overlay.ResultTTL != "" {
		return overlay
	}
	return base
}

func chooseRAG(base, overlay RAGConfig) RAGConfig {
	if overlay.Enabled || overlay.TopK != 0 || overlay.SimilarityThreshold != 0 || overlay.EmbeddingModel != "" ||
		overlay.EmbeddingDimensions != 0 || overlay.EmbeddingProvider != "" || overlay.EmbeddingBaseURL != "" {
		return overlay
	}
	return base
}

func chooseRLHF(base, overlay RLHFConfig) RLHFConfig {
	if overlay.Enabled || overlay.SimilarityThreshold != 0 || overlay.InitialConfidence != 0 ||
		overlay.ReinforcementIncrement != 0 || overlay.ExpiryDays != 0 || overlay.MinConfidenceToSuppress != 0 {
		return overlay
	}
	return base
}

func chooseRetention(base, overlay RetentionConfig) RetentionConfig {
	if overlay.FeedbackRecordDays != 0 || overlay.ExpiredConstraintSweepHour != 0 || overlay.TaskResultHours != 0 {
		return overlay
	}
	return base
}

func chooseDegradation(base, overlay DegradationConfig) DegradationConfig {
	if overlay.FailureThreshold != 0 || overlay.HalfOpenMaxCalls != 0 || overlay.OpenStateTimeout != "" {
		return overlay
	}
	return base
}

func chooseMCP(base, overlay MCPConfig) MCPConfig {
	if overlay.Enabled || overlay.ServerName != "" || overlay.ServerVersion != "" {
		return overlay
	}
	return base
}

func chooseIndexer(base, overlay IndexerConfig) IndexerConfig {
	if overlay.ChunkSizeChars != 0 || overlay.ChunkOverlapChars != 0 || overlay.MaxFileSizeBytes != 0 || overlay.CloneTimeout != "" {
		return overlay
	}
	return base
}

func chooseGateway(base, overlay GatewayConfig) GatewayConfig {
	if overlay.Addr != "" || overlay.WebhookMaxBodyBytes != 0 || overlay.RequireSignature {
		return overlay
	}
	return base
}

func chooseScheduler(base, overlay SchedulerConfig) SchedulerConfig {
	if overlay.ConstraintSweepCron != "" || overlay.MetricAggregationCron != "" || overlay.PeriodicReindexCron != "" {
		return overlay
	}
	return base
}
