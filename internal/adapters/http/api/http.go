// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/ledger"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/report"
	"github.com/okian/ladder/internal/domain/spotlight"
	"github.com/okian/ladder/internal/domain/tier"
	"github.com/okian/ladder/pkg/logger"
)

// defaultMaxBodyBytes caps request bodies when no limit is configured.
const defaultMaxBodyBytes = 1 << 16

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Sections() []string
	Students(ctx context.Context, section string) ([]service.StudentTier, error)
	Transition(ctx context.Context, section, studentID string, to tier.Tier) (service.TransitionResult, error)
	ResetSection(ctx context.Context, section string) error
	SectionReport(ctx context.Context, section string) (report.Section, error)
	WeeklySpotlight(ctx context.Context, at time.Time) (report.Poster, error)
	PurgeSpotlightWeek(ctx context.Context, weekKey string) (int, error)
	Meta(ctx context.Context) (model.Meta, error)
	SaveMeta(ctx context.Context, m model.Meta) error
	Now() time.Time
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	sectionsHandler  *SectionsHandler
	spotlightHandler *SpotlightHandler
	metaHandler      *MetaHandler
}

// Option configures a Server.
type Option func(*config)

type config struct {
	maxBodyBytes int64
	log          logger.Logger
}

// WithMaxBodyBytes limits request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := config{maxBodyBytes: defaultMaxBodyBytes, log: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &base{log: cfg.log, maxBodyBytes: cfg.maxBodyBytes, validator: newRequestValidator()}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		sectionsHandler:  &SectionsHandler{base: b, deps: deps},
		spotlightHandler: &SpotlightHandler{base: b, deps: deps},
		metaHandler:      &MetaHandler{base: b, deps: deps},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /sections", MetricsMiddleware(s.sectionsHandler.HandleList, "sections"))
	mux.HandleFunc("GET /sections/{section}/students", MetricsMiddleware(s.sectionsHandler.HandleStudents, "students"))
	mux.HandleFunc("POST /sections/{section}/transitions", MetricsMiddleware(s.sectionsHandler.HandleTransition, "transitions"))
	mux.HandleFunc("POST /sections/{section}/reset", MetricsMiddleware(s.sectionsHandler.HandleReset, "reset"))
	mux.HandleFunc("GET /sections/{section}/report", MetricsMiddleware(s.sectionsHandler.HandleReport, "report"))

	mux.HandleFunc("GET /spotlight", MetricsMiddleware(s.spotlightHandler.HandleWeek, "spotlight"))
	mux.HandleFunc("DELETE /spotlight/{week}", MetricsMiddleware(s.spotlightHandler.HandlePurge, "spotlight_purge"))

	mux.HandleFunc("GET /meta", MetricsMiddleware(s.metaHandler.HandleGet, "meta"))
	mux.HandleFunc("PUT /meta", MetricsMiddleware(s.metaHandler.HandlePut, "meta"))
}

// Handler returns every route behind the request ID middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return RequestID(mux)
}

// base carries what every business handler shares.
type base struct {
	log          logger.Logger
	maxBodyBytes int64
	validator    *requestValidator
}

// decode reads a JSON body into dst and validates it.
func (b *base) decode(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	body := http.MaxBytesReader(w, r.Body, b.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(op, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err != nil {
			if tooLarge := decodeError(op, err); errors.Is(tooLarge, ErrTooLarge) {
				return tooLarge
			}
		}
		return NewKind(op, fmt.Errorf("%w: trailing data after JSON body", ErrBadRequest))
	}
	if err := b.validator.Struct(dst); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

func decodeError(op string, err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return WrapKind(op, ErrTooLarge, fmt.Errorf("limit is %d bytes", mbe.Limit))
	}
	return WrapKind(op, ErrBadRequest, err)
}

// fail maps err to a status code and writes it. Server-side failures are
// logged with the request ID.
func (b *base) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rej *ledger.TransitionRejected
	if errors.As(err, &rej) {
		resp := rejectionResponse{
			errorResponse: errorResponse{Code: "transition_rejected", Message: rej.Error()},
			Terminal:      rej.Terminal,
		}
		if !rej.Terminal {
			resp.Expected = rej.Expected.String()
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}

	status, code := statusFor(err)
	if status >= statusInternalError {
		b.log.Error(r.Context(), "request failed",
			logger.String("request_id", RequestIDFrom(r.Context())),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSectionNotFound), errors.Is(err, service.ErrStudentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, tier.ErrUnknownTier),
		errors.Is(err, spotlight.ErrInvalidWeekKey),
		errors.Is(err, service.ErrMetaFieldTooLong):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rejectionResponse struct {
	errorResponse
	Expected string `json:"expected,omitempty"`
	Terminal bool   `json:"terminal"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
