package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/SpiceLabsHQ/tfapi/internal/provision"
	"github.com/SpiceLabsHQ/tfapi/internal/sweep"
)

// healthResponse reports templates that currently have a bucket mapping
// separately from operations running right now.
type healthResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	ActiveTemplates   int    `json:"activeTemplates"`
	RunningOperations int    `json:"runningOperations"`
	TrackedBuckets    int    `json:"trackedBuckets"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tracked, err := s.registry.Tracked(r.Context())
	if err != nil {
		s.log.Warn("read tracked buckets failed", zap.Error(err))
	}
	mappings, err := s.registry.Mappings(r.Context())
	if err != nil {
		s.log.Warn("read template mappings failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Message:           "Terraform API is running",
		ActiveTemplates:   len(mappings),
		RunningOperations: s.svc.ActiveTemplates(),
		TrackedBuckets:    len(tracked),
	})
}

type rootResponse struct {
	Info
	Registry       string     `json:"registry"`
	Bucket         string     `json:"bucket"`
	TrackedBuckets []string   `json:"trackedBuckets"`
	Endpoints      []endpoint `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	tracked, err := s.registry.Tracked(r.Context())
	if err != nil {
		s.log.Warn("read tracked buckets failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, rootResponse{
		Info:           s.info,
		Registry:       s.registry.Backend(),
		Bucket:         s.registry.Current(),
		TrackedBuckets: nonNil(tracked),
		Endpoints:      endpoints,
	})
}

// detach returns a context for a mutating operation. Terraform must not be
// killed because the client hung up; the runner's own timeout bounds it.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// request builds the operation request from the route and optional body.
func request(r *http.Request) (provision.Request, error) {
	req := provision.Request{
		Template:  mux.Vars(r)["template"],
		RequestID: RequestID(r.Context()),
	}
	body, err := decodeBody(r)
	if err != nil {
		return req, err
	}
	req.Args = body.Args
	req.Environment = body.Environment
	return req, nil
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	req, err := request(r)
	if err != nil {
		writeError(w, req.Template, err)
		return
	}
	res, err := s.svc.Init(detach(r), req)
	if err != nil {
		s.log.Error("init failed", zap.String("template", req.Template), zap.Error(err))
		writeError(w, req.Template, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	req, err := request(r)
	if err != nil {
		writeError(w, req.Template, err)
		return
	}
	res, err := s.svc.Apply(detach(r), req)
	if err != nil {
		s.log.Error("apply failed", zap.String("template", req.Template), zap.Error(err))
		writeError(w, req.Template, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	req, err := request(r)
	if err != nil {
		writeError(w, req.Template, err)
		return
	}
	res, err := s.svc.Destroy(detach(r), req)
	if err != nil {
		s.log.Error("destroy failed", zap.String("template", req.Template), zap.Error(err))
		writeError(w, req.Template, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusResponse struct {
	Success bool `json:"success"`
	*provision.StatusResult
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	template := mux.Vars(r)["template"]
	res, err := s.svc.Status(r.Context(), template, r.URL.Query().Get("environment"))
	if err != nil {
		writeError(w, template, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, StatusResult: res})
}

type templatesResponse struct {
	Success   bool                     `json:"success"`
	Templates []provision.TemplateInfo `json:"templates"`
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Templates(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, templatesResponse{Success: true, Templates: list})
}

type bucketResponse struct {
	Success        bool     `json:"success"`
	Bucket         string   `json:"bucket"`
	Exists         bool     `json:"exists"`
	TrackedBuckets []string `json:"trackedBuckets"`
}

func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request) {
	tracked, err := s.registry.Tracked(r.Context())
	if err != nil {
		writeError(w, "", err)
		return
	}
	current := s.registry.Current()
	writeJSON(w, http.StatusOK, bucketResponse{
		Success:        true,
		Bucket:         current,
		Exists:         current != "",
		TrackedBuckets: nonNil(tracked),
	})
}

type cleanupResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details *sweep.Summary `json:"details"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	summary := s.sweeper.CleanupAll(r.Context())
	msg := fmt.Sprintf("Deleted %d of %d buckets", summary.Deleted, summary.Total)
	if !summary.Success {
		msg = "Bucket discovery failed: " + summary.Error
	}
	writeJSON(w, http.StatusOK, cleanupResponse{Success: summary.Success, Message: msg, Details: summary})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
