package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/caseaudit/internal/compliance"
	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/evidence"
	"github.com/sells-group/caseaudit/internal/manifest"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the case evaluation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		env, err := initAudit(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the HTTP API onto env. Request paths are confined to
// sc.EvidenceRoot; cross-origin calls are only allowed from
// sc.AllowedOrigins.
func buildRouter(env *auditEnv, sc config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	// an empty origin list means "allow all" to the cors package
	if len(sc.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: sc.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	h := &apiHandler{env: env, root: evidenceRoot(sc.EvidenceRoot)}
	r.Get("/health", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/cases/evaluate", h.evaluate)
		r.Post("/protest/validate", h.validateProtest)
		r.Get("/decisions/{caseID}", h.latestDecision)
	})
	return r
}

type apiHandler struct {
	env  *auditEnv
	root string
}

// evidenceRoot returns dir as an absolute path with symlinks resolved.
// An empty dir yields "", which confine rejects for every path.
func evidenceRoot(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// confine resolves path against root and rejects anything that lands
// outside it. Relative paths are taken relative to root.
func (h *apiHandler) confine(path string) (string, error) {
	if h.root == "" {
		return "", eris.New("serve: no evidence root configured")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.root, path)
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	rel, err := filepath.Rel(h.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("serve: %s is outside the evidence root", path)
	}
	return path, nil
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.env.Lookup != nil {
		states := make(map[string]string)
		for source, st := range h.env.Lookup.States() {
			states[source] = st.String()
		}
		body["lookup"] = states
	}
	respondJSON(w, http.StatusOK, body)
}

func (h *apiHandler) evaluate(w http.ResponseWriter, r *http.Request) {
	var m manifest.Manifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	m.Resolve(h.root)
	for i := range m.Evidence {
		ev := &m.Evidence[i]
		if ev.FilePath == "" {
			continue
		}
		p, err := h.confine(ev.FilePath)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid evidence", err)
			return
		}
		ev.FilePath = p
	}

	out, err := h.env.evaluateCase(r.Context(), &m)
	if err != nil {
		var inputErr *evidence.InputError
		if errors.As(err, &inputErr) {
			respondError(w, http.StatusBadRequest, "invalid evidence", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

type protestRequest struct {
	ProtestPath string `json:"protest_path"`
	Amount      string `json:"amount"`
	MemoPath    string `json:"memo_path,omitempty"`
}

func (h *apiHandler) validateProtest(w http.ResponseWriter, r *http.Request) {
	var req protestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ProtestPath == "" || req.Amount == "" {
		respondError(w, http.StatusBadRequest, "protest_path and amount are required", nil)
		return
	}
	protestPath, err := h.confine(req.ProtestPath)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid protest_path", err)
		return
	}
	memoPath := req.MemoPath
	if memoPath != "" {
		if memoPath, err = h.confine(memoPath); err != nil {
			respondError(w, http.StatusBadRequest, "invalid memo_path", err)
			return
		}
	}
	check := compliance.ValidateProtestAmount(r.Context(), h.env.Extractor, protestPath, req.Amount, memoPath)
	respondJSON(w, http.StatusOK, check)
}

func (h *apiHandler) latestDecision(w http.ResponseWriter, r *http.Request) {
	if h.env.Store == nil {
		respondError(w, http.StatusServiceUnavailable, "decision store is disabled", nil)
		return
	}
	// case IDs carry a slash and arrive escaped
	caseID, err := url.PathUnescape(chi.URLParam(r, "caseID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid case id", err)
		return
	}

	rec, err := h.env.Store.LatestDecision(r.Context(), caseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "no decision for case", nil)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
