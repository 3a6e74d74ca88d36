// Package webui serves the browser front end for the prompt pipeline: a single page,
// a JSON API over the run controller, a server-sent event stream of snapshots and
// the Prometheus scrape endpoint.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/journal"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/orchestrator"
	"promptarchitect/pkg/prompt"
)

//go:embed web/templates/*.html
var templateFS embed.FS

//go:embed web/static
var staticFS embed.FS

// authUsername is the fixed basic auth user.
const authUsername = "promptarchitect"

// History lists journaled runs, newest first.
type History interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server represents the web UI HTTP server.
type Server struct {
	controller *orchestrator.Controller
	history    History
	gatherer   prometheus.Gatherer
	submits    *clientLimiter
	logger     *logx.Logger
	templates  *template.Template
	projectDir string
}

// NewServer creates a web UI server over controller.
// submitsPerMinute bounds run submissions per client; 0 disables the limit.
func NewServer(controller *orchestrator.Controller, projectDir string, submitsPerMinute int) *Server {
	templates, err := template.ParseFS(templateFS, "web/templates/*.html")
	if err != nil {
		// Templates are embedded at compile time.
		panic(fmt.Sprintf("Failed to parse embedded templates: %v", err))
	}

	return &Server{
		controller: controller,
		projectDir: projectDir,
		submits:    newClientLimiter(submitsPerMinute),
		logger:     logx.NewLogger("webui"),
		templates:  templates,
	}
}

// SetHistory enables GET /api/history. Without it the route answers 404.
func (s *Server) SetHistory(history History) {
	s.history = history
}

// SetGatherer enables GET /metrics for the given registry.
func (s *Server) SetGatherer(gatherer prometheus.Gatherer) {
	s.gatherer = gatherer
}

// requireAuth wraps an HTTP handler with Basic Authentication.
// Authentication is only enforced when a password is configured (secrets file or PROMPTARCHITECT_PASSWORD).
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expectedPassword := config.GetWebUIPassword()
		if expectedPassword == "" {
			next(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Prompt Architect"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if username != authUsername || password != expectedPassword {
			s.logger.Warn("Failed authentication attempt from %s (username: %s)", r.RemoteAddr, username)
			w.Header().Set("WWW-Authenticate", `Basic realm="Prompt Architect"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// RegisterRoutes sets up HTTP routes for the page and the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.requireAuth(s.handleIndex))

	staticSubFS, err := fs.Sub(staticFS, "web/static")
	if err != nil {
		panic(fmt.Sprintf("Failed to access embedded static files: %v", err))
	}
	mux.Handle("/static/", s.requireAuth(http.StripPrefix("/static/", http.FileServer(http.FS(staticSubFS))).ServeHTTP))

	mux.HandleFunc("/api/options", s.requireAuth(s.handleOptions))
	mux.HandleFunc("/api/runs", s.requireAuth(s.handleSubmit))
	mux.HandleFunc("/api/runs/retry", s.requireAuth(s.handleRetry))
	mux.HandleFunc("/api/runs/cancel", s.requireAuth(s.handleCancel))
	mux.HandleFunc("/api/state", s.requireAuth(s.handleState))
	mux.HandleFunc("/api/events", s.requireAuth(s.handleEvents))
	mux.HandleFunc("/api/session/new", s.requireAuth(s.handleNewSession))
	mux.HandleFunc("/api/result/prompt", s.requireAuth(s.handleResultPrompt))
	mux.HandleFunc("/api/result/markdown", s.requireAuth(s.handleResultMarkdown))
	mux.HandleFunc("/api/history", s.requireAuth(s.handleHistory))
	mux.HandleFunc("/api/logs", s.requireAuth(s.handleLogs))
	mux.HandleFunc("/api/healthz", s.requireAuth(s.handleHealth))
	mux.HandleFunc("/api/secrets", s.requireAuth(s.handleSecretsRouter))
	mux.HandleFunc("/api/secrets/", s.requireAuth(s.handleSecretsDelete))

	if s.gatherer != nil {
		mux.Handle("/metrics", s.requireAuth(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP))
	}
}

// handleSecretsRouter routes GET/POST to appropriate handlers.
func (s *Server) handleSecretsRouter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSecretsList(w, r)
	case http.MethodPost:
		s.handleSecretsSet(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleIndex serves the single page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := map[string]any{
		"Title":      "Prompt Architect",
		"Model":      s.controller.ModelName(),
		"Targets":    targetOptions(),
		"Techniques": techniqueOptions(),
		"Version":    version.Version,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("Failed to render index template: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}

// handleHealth implements GET /api/healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]string{
		"status":   "ok",
		"version":  version.Version,
		"revision": version.GetRevision(),
		"model":    s.controller.ModelName(),
		"phase":    string(s.controller.State().Phase()),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleLogs implements GET /api/logs.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	domain := query.Get("domain")

	var since time.Time
	if sinceStr := query.Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			s.logger.Warn("Invalid since parameter: %s", sinceStr)
			http.Error(w, "Invalid since parameter (use RFC3339)", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	logs := logx.GetRecentLogEntries(domain, since)
	if logs == nil {
		logs = []logx.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// writeError sends {"error": message} with the given status.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// StartServer starts the HTTP server and shuts it down when ctx ends.
// It returns once the listener has stopped.
func (s *Server) StartServer(ctx context.Context, host string, port int) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", host, port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	auth := "disabled"
	if config.GetWebUIPassword() != "" {
		auth = "basic (user " + authUsername + ")"
	}
	s.logger.Info("🌐 Starting web UI on http://%s (auth: %s)", addr, auth)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		s.logger.Info("Shutting down web UI server")
		// The parent context is already canceled; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is canceled; a fresh context bounds shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-shutdownDone
		return nil
	}
	return fmt.Errorf("web UI server on %s: %w", addr, err)
}

// option is a key/label pair for the form controls.
type option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

func targetOptions() []option {
	out := make([]option, 0, len(prompt.AllTargets))
	for _, t := range prompt.AllTargets {
		out = append(out, option{Key: t.String(), Label: t.Label()})
	}
	return out
}

func techniqueOptions() []option {
	out := make([]option, 0, len(prompt.AllTechniques))
	for _, t := range prompt.AllTechniques {
		out = append(out, option{Key: t.String(), Label: t.Label()})
	}
	return out
}
