package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/monitoring"
	"github.com/tapcard/contact-search/internal/ratelimit"
	"github.com/tapcard/contact-search/internal/search"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limiter := ratelimit.New(cfg.RateLimit)
		router := newRouter(env, limiter)

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownGraceSecs)*time.Second)
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *appEnv, limiter *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-User-ID", "X-User-Tier"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)
		r.Use(rateLimit(limiter))

		r.Post("/search", handleSearch(env))
		r.Get("/groups", handleListGroups(env))
		r.Post("/groups/rules", handleRulesGroups(env))
		r.Post("/groups/ai", handleStartAIGroups(env))
		r.Get("/jobs/{jobID}", handleJobStatus(env))
		r.Get("/usage", handleUsage(env))
	})

	return r
}

type ctxKey int

const userKey ctxKey = 0

// requireUser resolves the caller's identity and tier from the headers an
// upstream gateway sets after authentication.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
			return
		}
		user := model.User{ID: userID, Tier: r.Header.Get("X-User-Tier")}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func userFrom(r *http.Request) model.User {
	u, _ := r.Context().Value(userKey).(model.User)
	return u
}

func rateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(userFrom(r).ID) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleSearch(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query      string `json:"query"`
			TopK       int    `json:"top_k"`
			TopN       int    `json:"top_n"`
			Language   string `json:"language"`
			SkipRerank bool   `json:"skip_rerank"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		topK := req.TopK
		if topK <= 0 {
			topK = cfg.Search.TopK
		}
		result, err := env.Pipeline.Search(r.Context(), userFrom(r), req.Query, search.Options{
			TopK:         topK,
			TopN:         req.TopN,
			LanguageHint: req.Language,
			SkipRerank:   req.SkipRerank,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleListGroups(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gs, err := env.Store.ListGroups(r.Context(), userFrom(r).ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list groups")
			zap.L().Error("list groups", zap.Error(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": gs})
	}
}

func handleRulesGroups(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		contacts, err := env.Store.ListContacts(r.Context(), user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load contacts")
			zap.L().Error("rules grouping", zap.Error(err))
			return
		}

		generated, stats := env.Rules.Generate(user.ID, contacts)
		saved := 0
		if len(generated) > 0 {
			saved, err = env.Store.SaveGroups(r.Context(), user.ID, generated)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to save groups")
				zap.L().Error("save rules groups", zap.Error(err))
				return
			}
		}

		writeJSON(w, http.StatusOK, model.GroupingResult{
			Groups:         generated,
			TotalGenerated: stats.CompanyGroups + stats.EventGroups + stats.LocationGroups,
			TotalUnique:    len(generated),
			TotalSaved:     saved,
		})
	}
}

func handleStartAIGroups(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := env.Orchestrator.Start(r.Context(), userFrom(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

func handleJobStatus(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := env.Orchestrator.Status(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load job")
			zap.L().Error("job status", zap.Error(err))
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if job.UserID != userFrom(r).ID {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleUsage(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := env.Gate.Snapshot(r.Context(), userFrom(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to compute usage")
			zap.L().Error("usage snapshot", zap.Error(err))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// writeDomainError maps the error taxonomy onto HTTP statuses: validation
// 400, feature gates 403, budget 402, provider trouble 503.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *model.ValidationError
		gateErr       *model.FeatureGateError
		budgetErr     *model.BudgetExceededError
		providerErr   *model.ProviderError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &gateErr):
		writeError(w, http.StatusForbidden, gateErr.Error())
	case errors.As(err, &budgetErr):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     budgetErr.Error(),
			"remaining": budgetErr.Remaining,
		})
	case errors.As(err, &providerErr):
		writeError(w, http.StatusServiceUnavailable, "search provider unavailable")
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
