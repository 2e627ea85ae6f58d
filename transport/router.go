package transport

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the pipeline surface the HTTP layer exposes. The production
// implementation is *pipeline.Pipeline.
type Service interface {
	Ingest(ctx context.Context, sourceKey string, typeHint string, body []byte) (pipeline.IngestResult, error)
	RetryNow(ctx context.Context) (int, error)
	PurgeSucceeded(ctx context.Context, olderThan time.Duration) (int, error)
	ReplaySource(ctx context.Context, sourceKey string) error
	MarkDead(ctx context.Context, id string, reason string) (core.WebhookEvent, error)
	GetEvent(ctx context.Context, id string) (core.WebhookEvent, error)
	ListDead(ctx context.Context, limit int) ([]core.WebhookEvent, error)
	Health(ctx context.Context) (core.HealthSnapshot, error)
}

type Router struct {
	service Service
	log     core.Logger
}

type Option func(*Router)

func WithLogger(log core.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

func NewRouter(service Service, opts ...Option) (*Router, error) {
	if service == nil {
		return nil, transportError(
			"transport: service is required",
			goerrors.CategoryBadInput,
			fiber.StatusBadRequest,
			nil,
		)
	}
	_, logger := glog.Resolve("ingest.transport", nil, nil)
	router := &Router{service: service, log: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router, nil
}

// Register mounts the ingestion and operator endpoints on the given app.
func (r *Router) Register(app fiber.Router) {
	app.Post("/ingest/:source/:event?", r.handleIngest)
	app.Get("/healthz", r.handleHealthz)
	app.Post("/retry", r.handleRetry)
	app.Post("/cleanup", r.handleCleanup)
	app.Get("/dead", r.handleListDead)
	app.Get("/events/:id", r.handleGetEvent)
	app.Post("/events/:id/dead", r.handleMarkDead)
	app.Post("/sources/:source/replay", r.handleReplaySource)
}

// NewApp builds a fiber app with the router mounted, suitable for embedding
// or serving standalone.
func (r *Router) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return renderError(c, err)
		},
	})
	r.Register(app)
	return app
}

type ingestResponse struct {
	EventID   string `json:"eventId"`
	SourceKey string `json:"sourceKey"`
	EventType string `json:"eventType"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

func (r *Router) handleIngest(c *fiber.Ctx) error {
	sourceKey := strings.TrimSpace(c.Params("source"))
	typeHint := strings.TrimSpace(c.Params("event"))
	if sourceKey == "" {
		return renderError(c, transportError(
			"transport: source key is required",
			goerrors.CategoryBadInput,
			fiber.StatusBadRequest,
			nil,
		))
	}

	result, err := r.service.Ingest(c.UserContext(), sourceKey, typeHint, c.Body())
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(ingestResponse{
		EventID:   result.EventID,
		SourceKey: result.SourceKey,
		EventType: string(result.EventType),
		Status:    result.Status,
		Duplicate: result.Duplicate,
	})
}

type healthResponse struct {
	Healthy                 bool     `json:"healthy"`
	PendingCount            int      `json:"pendingCount"`
	InFlightCount           int      `json:"inFlightCount"`
	RetryableCount          int      `json:"retryableCount"`
	DeadCount               int      `json:"deadCount"`
	QueueLag                int      `json:"queueLag"`
	OldestPendingAgeSeconds float64  `json:"oldestPendingAgeSeconds"`
	StuckSources            []string `json:"stuckSources,omitempty"`
	SampledAt               string   `json:"sampledAt"`
}

func (r *Router) handleHealthz(c *fiber.Ctx) error {
	snapshot, err := r.service.Health(c.UserContext())
	if err != nil {
		return renderError(c, err)
	}

	status := fiber.StatusOK
	if !snapshot.Healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(healthResponse{
		Healthy:                 snapshot.Healthy,
		PendingCount:            snapshot.PendingCount,
		InFlightCount:           snapshot.InFlightCount,
		RetryableCount:          snapshot.RetryableCount,
		DeadCount:               snapshot.DeadCount,
		QueueLag:                snapshot.QueueLag,
		OldestPendingAgeSeconds: snapshot.OldestPendingAge.Seconds(),
		StuckSources:            snapshot.StuckSources,
		SampledAt:               snapshot.SampledAt.UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleRetry(c *fiber.Ctx) error {
	cleared, err := r.service.RetryNow(c.UserContext())
	if err != nil {
		return renderError(c, err)
	}
	r.log.Info("forced retry requested", "cleared", cleared)
	return c.JSON(fiber.Map{"cleared": cleared})
}

type cleanupRequest struct {
	OlderThan string `json:"olderThan"`
}

func (r *Router) handleCleanup(c *fiber.Ctx) error {
	var req cleanupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return renderError(c, transportError(
				"transport: malformed cleanup request",
				goerrors.CategoryBadInput,
				fiber.StatusBadRequest,
				nil,
			))
		}
	}

	var olderThan time.Duration
	if raw := strings.TrimSpace(req.OlderThan); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return renderError(c, transportError(
				"transport: olderThan must be a non-negative duration",
				goerrors.CategoryBadInput,
				fiber.StatusBadRequest,
				map[string]any{"older_than": raw},
			))
		}
		olderThan = parsed
	}

	purged, err := r.service.PurgeSucceeded(c.UserContext(), olderThan)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"purged": purged})
}

func (r *Router) handleListDead(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return renderError(c, transportError(
			"transport: limit must be >= 0",
			goerrors.CategoryBadInput,
			fiber.StatusBadRequest,
			nil,
		))
	}

	dead, err := r.service.ListDead(c.UserContext(), limit)
	if err != nil {
		return renderError(c, err)
	}
	views := make([]eventView, 0, len(dead))
	for _, event := range dead {
		views = append(views, newEventView(event))
	}
	return c.JSON(fiber.Map{"events": views})
}

func (r *Router) handleGetEvent(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return renderError(c, transportError(
			"transport: event id is required",
			goerrors.CategoryBadInput,
			fiber.StatusBadRequest,
			nil,
		))
	}

	event, err := r.service.GetEvent(c.UserContext(), id)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(newEventView(event))
}

type markDeadRequest struct {
	Reason string `json:"reason"`
}

func (r *Router) handleMarkDead(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return renderError(c, transportError(
			"transport: event id is required",
			goerrors.CategoryBadInput,
			fiber.StatusBadRequest,
			nil,
		))
	}

	var req markDeadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return renderError(c, transportError(
				"transport: malformed dead-letter request",
				goerrors.CategoryBadInput,
				fiber.StatusBadRequest,
				nil,
			))
		}
	}

	event, err := r.service.MarkDead(c.UserContext(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(newEventView(event))
}

func (r *Router) handleReplaySource(c *fiber.Ctx) error {
	sourceKey := strings.TrimSpace(c.Params("source"))
	if sourceKey == "" {
		return renderError(c, transportError(
			"transport: source key is required",
			goerrors.CategoryBadInput,
			fiber.StatusBadRequest,
			nil,
		))
	}

	if err := r.service.ReplaySource(c.UserContext(), sourceKey); err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"replayed": sourceKey})
}

type eventView struct {
	ID             string `json:"id"`
	SourceKey      string `json:"sourceKey"`
	EventType      string `json:"eventType"`
	Status         string `json:"status"`
	Attempts       int    `json:"attempts"`
	LastError      string `json:"lastError,omitempty"`
	CreatedAt      string `json:"createdAt"`
	NextEligibleAt string `json:"nextEligibleAt,omitempty"`
	LastAttemptAt  string `json:"lastAttemptAt,omitempty"`
	TerminalAt     string `json:"terminalAt,omitempty"`
}

func newEventView(event core.WebhookEvent) eventView {
	view := eventView{
		ID:        event.ID,
		SourceKey: event.SourceKey,
		EventType: string(event.Type),
		Status:    event.Status,
		Attempts:  event.Attempts,
		LastError: event.LastError,
		CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339),
	}
	if event.NextEligibleAt != nil {
		view.NextEligibleAt = event.NextEligibleAt.UTC().Format(time.RFC3339)
	}
	if event.LastAttemptAt != nil {
		view.LastAttemptAt = event.LastAttemptAt.UTC().Format(time.RFC3339)
	}
	if event.TerminalAt != nil {
		view.TerminalAt = event.TerminalAt.UTC().Format(time.RFC3339)
	}
	return view
}
