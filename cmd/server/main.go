package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"altguard/internal/challenge"
	"altguard/internal/config"
	"altguard/internal/crypto"
	"altguard/internal/database"
	"altguard/internal/detector"
	"altguard/internal/fingerprint"
	"altguard/internal/handlers"
	"altguard/internal/logging"
	"altguard/internal/platform"
	"altguard/internal/similarity"
	"altguard/internal/workflow"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Configure(cfg.LogLevel)

	policy, err := workflow.ParsePolicy(cfg.DetectionPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid detection policy")
	}

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var aesKey []byte
	if cfg.PayloadAESKey != "" {
		aesKey, err = crypto.DecodeBase64(cfg.PayloadAESKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to decode configured payload AES key")
		}
		if len(aesKey) != 32 {
			log.Fatal().Int("bytes", len(aesKey)).Msg("Payload AES key must be exactly 32 bytes")
		}
		log.Info().Msg("Payload decryption enabled")
	}

	tagger := fingerprint.DefaultTagger
	normalizer := fingerprint.NewNormalizer(db)
	scorer := similarity.NewScorer(db, tagger)
	det := detector.New(db, scorer, cfg.DetectorConcurrency, cfg.DetectorPrefilter)
	challenges := challenge.NewService(cfg, db)
	gateway := platform.NewClient(cfg.PlatformBaseURL, cfg.PlatformToken)

	engine := workflow.NewEngine(workflow.Config{
		Policy:         policy,
		StandardRoleID: cfg.StandardRoleID,
		StaffChannelID: cfg.StaffChannelID,
	}, db, gateway, gateway, challenges)

	handler := handlers.NewHandler(cfg, db, normalizer, det, engine, challenges, tagger, aesKey)

	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Handle("/authorize", handler.RequireAPIKey(http.HandlerFunc(handler.AuthorizeHandler))).Methods("POST")
	api.Handle("/detect/{accountId}", handler.RequireAPIKey(http.HandlerFunc(handler.DetectHandler))).Methods("GET")
	api.Handle("/fingerprints/{accountId}", handler.RequireAPIKey(http.HandlerFunc(handler.FingerprintHandler))).Methods("GET")
	api.Handle("/accounts/{accountId}/actions", handler.RequireAPIKey(http.HandlerFunc(handler.AccountActionsHandler))).Methods("GET")
	api.Handle("/actions/{actionId}", handler.RequireAPIKey(http.HandlerFunc(handler.ActionHandler))).Methods("GET")
	api.Handle("/actions/{actionId}/resolve", handler.RequireAPIKey(http.HandlerFunc(handler.ResolveActionHandler))).Methods("POST")
	api.HandleFunc("/challenge/verify", handler.ChallengeVerifyHandler).Methods("POST")
	api.HandleFunc("/health", handler.HealthHandler).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.APICORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	rateLimiter := rate.NewLimiter(
		rate.Every(time.Duration(cfg.APIRateLimitWindowMins)*time.Minute/time.Duration(cfg.APIRateLimitRequests)),
		cfg.APIRateLimitRequests,
	)

	finalHandler := rateLimitMiddleware(rateLimiter)(c.Handler(router))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      finalHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go challenges.StartCleanup(cleanupCtx)

	log.Info().
		Str("addr", server.Addr).
		Str("policy", policy.String()).
		Int("detector_concurrency", cfg.DetectorConcurrency).
		Bool("prefilter", cfg.DetectorPrefilter).
		Msg("Alternate-account verification server starting")

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
