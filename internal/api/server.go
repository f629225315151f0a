// Package api exposes the template operations over HTTP. Every response is
// JSON; failures carry {success:false, template, error} and a status code
// chosen from the error kind.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/metrics"
	"github.com/SpiceLabsHQ/tfapi/internal/provision"
	"github.com/SpiceLabsHQ/tfapi/internal/registry"
	"github.com/SpiceLabsHQ/tfapi/internal/sweep"
)

// Info is echoed by the root endpoint.
type Info struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	TerraformPath string `json:"terraformPath"`
	Region        string `json:"region"`
}

// Service is the set of template operations the server calls.
type Service interface {
	Init(ctx context.Context, req provision.Request) (*provision.InitResult, error)
	Apply(ctx context.Context, req provision.Request) (*provision.ApplyResult, error)
	Destroy(ctx context.Context, req provision.Request) (*provision.DestroyResult, error)
	Status(ctx context.Context, template, env string) (*provision.StatusResult, error)
	Templates(ctx context.Context) ([]provision.TemplateInfo, error)
	ActiveTemplates() int
}

var _ Service = (*provision.Service)(nil)

// Sweeper runs an account-wide bucket sweep.
type Sweeper interface {
	CleanupAll(ctx context.Context) *sweep.Summary
}

// Deps holds the collaborators of a Server. Metrics and Log are optional.
type Deps struct {
	Service  Service
	Registry *registry.Registry
	Sweeper  Sweeper
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Info     Info
}

// Server routes HTTP requests to the template operations.
type Server struct {
	svc      Service
	registry *registry.Registry
	sweeper  Sweeper
	metrics  *metrics.Metrics
	log      *zap.Logger
	info     Info
	router   *mux.Router
}

// endpoint describes one route for the root listing.
type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []endpoint{
	{http.MethodGet, "/health", "Health check"},
	{http.MethodGet, "/", "Service information and endpoint list"},
	{http.MethodPost, "/api/terraform/{template}/init", "Initialize terraform for a template"},
	{http.MethodPost, "/api/terraform/{template}/apply", "Apply terraform for a template"},
	{http.MethodPost, "/api/terraform/{template}/destroy", "Destroy a template's resources and clean up buckets"},
	{http.MethodGet, "/api/terraform/{template}/status", "Report a template's bucket and state files"},
	{http.MethodGet, "/api/templates", "List templates with stored state"},
	{http.MethodGet, "/api/bucket", "Show the current and tracked buckets"},
	{http.MethodPost, "/api/cleanup", "Delete every managed bucket"},
	{http.MethodGet, "/metrics", "Prometheus metrics"},
}

// NewServer creates a Server and registers its routes.
func NewServer(d Deps) *Server {
	s := &Server{
		svc:      d.Service,
		registry: d.Registry,
		sweeper:  d.Sweeper,
		metrics:  d.Metrics,
		log:      d.Log,
		info:     d.Info,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.observe)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	tf := r.PathPrefix("/api/terraform/{template}").Subrouter()
	tf.HandleFunc("/init", s.handleInit).Methods(http.MethodPost)
	tf.HandleFunc("/apply", s.handleApply).Methods(http.MethodPost)
	tf.HandleFunc("/destroy", s.handleDestroy).Methods(http.MethodPost)
	tf.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/templates", s.handleTemplates).Methods(http.MethodGet)
	r.HandleFunc("/api/bucket", s.handleBucket).Methods(http.MethodGet)
	r.HandleFunc("/api/cleanup", s.handleCleanup).Methods(http.MethodPost)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
