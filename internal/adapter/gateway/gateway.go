package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/platform/metrics"
)

// platformHeaders names the event-type, signature, and delivery-ID
// headers a forge sends with each webhook.
type platformHeaders struct {
	event     string
	signature string
	delivery  string
}

var knownPlatforms = map[string]platformHeaders{
	domain.PlatformGitHub: {event: "X-GitHub-Event", signature: "X-Hub-Signature-256", delivery: "X-GitHub-Delivery"},
	domain.PlatformGitea:  {event: "X-Gitea-Event", signature: "X-Gitea-Signature", delivery: "X-Gitea-Delivery"},
}

// Deps wires the gateway's outbound collaborators.
type Deps struct {
	Platforms   platform.Registry
	Secrets     map[string]string // platform name -> webhook secret, per PlatformsConfig
	Queue       Enqueuer
	Results     TaskGetter
	Deliveries  DeliveryStore // optional; nil disables delivery-dedup
	Reindex     ReindexRegistrar // optional; nil disables periodic re-index registration
	Feedback    FeedbackProcessor
	Manifest    domain.MCPManifest
	Metrics     *metrics.Registry
	Logger      logging.Logger
	ReviewQueue string // queue name a parsed PR event is enqueued onto
	IndexQueue  string // queue name an indexing request is enqueued onto
}

// Options configures gateway behavior not dictated by Deps.
type Options struct {
	WebhookMaxBodyBytes int64
	RequireSignature    bool
}

// DefaultOptions returns the gateway's conservative defaults.
func DefaultOptions() Options {
	return Options{
		WebhookMaxBodyBytes: 5 << 20,
		RequireSignature:    true,
	}
}

// Server implements the ingress HTTP API.
type Server struct {
	deps Deps
	opts Options
}

// New constructs a Server ready to be mounted via Router.
func New(deps Deps, opts Options) *Server {
	if deps.ReviewQueue == "" {
		deps.ReviewQueue = "code_review"
	}
	if deps.IndexQueue == "" {
		deps.IndexQueue = "indexing"
	}
	if opts.WebhookMaxBodyBytes == 0 {
		opts.WebhookMaxBodyBytes = DefaultOptions().WebhookMaxBodyBytes
	}
	return &Server{deps: deps, opts: opts}
}

// Router builds the mux.Router exposing every ingress operation.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.recoverMiddleware)

	router.HandleFunc("/webhook/{platform}", s.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/feedback", s.handleFeedback).Methods(http.MethodPost)
	router.HandleFunc("/repositories/{repo_id}/index", s.handleIndex).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{task_id}", s.handleGetTask).Methods(http.MethodGet)
	router.HandleFunc("/mcp/manifest", s.handleManifest).Methods(http.MethodGet)

	if s.deps.Metrics != nil {
		router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	return router
}

func (s *Server) logWarn(msg string, fields logging.Fields) {
	if s.deps.Logger != nil {
		s.deps.Logger.Warn(msg, fields)
	}
}

func (s *Server) logError(msg string, err error, fields logging.Fields) {
	if s.deps.Logger != nil {
		s.deps.Logger.Error(msg, err, fields)
	}
}

func now() time.Time { return time.Now() }
