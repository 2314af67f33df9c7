package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"altguard/internal/challenge"
	"altguard/internal/config"
	"altguard/internal/crypto"
	"altguard/internal/database"
	"altguard/internal/detector"
	"altguard/internal/fingerprint"
	"altguard/internal/workflow"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	cfg        *config.Config
	db         *database.DB
	normalizer *fingerprint.Normalizer
	detector   *detector.Detector
	engine     *workflow.Engine
	challenges *challenge.Service
	tagger     fingerprint.Tagger
	aesKey     []byte
}

func NewHandler(cfg *config.Config, db *database.DB, normalizer *fingerprint.Normalizer,
	det *detector.Detector, engine *workflow.Engine, challenges *challenge.Service,
	tagger fingerprint.Tagger, aesKey []byte) *Handler {
	return &Handler{
		cfg:        cfg,
		db:         db,
		normalizer: normalizer,
		detector:   det,
		engine:     engine,
		challenges: challenges,
		tagger:     tagger,
		aesKey:     aesKey,
	}
}

type AuthorizeRequest struct {
	AccountID   string          `json:"accountId"`
	Fingerprint json.RawMessage `json:"fingerprint"`
}

type AuthorizeResponse struct {
	Outcome    workflow.Outcome     `json:"outcome"`
	Candidates []detector.Candidate `json:"candidates,omitempty"`
}

type DetectResponse struct {
	AccountID  string               `json:"accountId"`
	Candidates []detector.Candidate `json:"candidates"`
}

type ChallengeVerifyRequest struct {
	ChallengeID string `json:"challengeId"`
	Nonce       string `json:"nonce"`
	Hash        string `json:"hash"`
}

type ChallengeVerifyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AuthorizeHandler is the authorization handoff: captures the reported
// fingerprint, scans for alternate accounts, and applies the configured
// policy. Store failures are reported as retryable; nothing was applied.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.AccountID == "" || len(req.Fingerprint) == 0 {
		writeError(w, http.StatusBadRequest, "accountId and fingerprint are required")
		return
	}

	payload, err := h.unsealPayload(req.Fingerprint)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to decrypt fingerprint payload")
		return
	}

	if _, err := h.normalizer.Capture(r.Context(), req.AccountID, payload); err != nil {
		if errors.Is(err, fingerprint.ErrMalformedPayload) {
			writeError(w, http.StatusBadRequest, "Malformed fingerprint payload")
			return
		}
		log.Error().Err(err).Str("account_id", req.AccountID).Msg("Fingerprint capture failed")
		writeError(w, http.StatusServiceUnavailable, "Fingerprint store unavailable, retry")
		return
	}

	detectCtx, cancel := h.detectionContext(r.Context())
	defer cancel()

	candidates, err := h.detector.Detect(detectCtx, req.AccountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", req.AccountID).Msg("Detection failed")
		writeError(w, http.StatusServiceUnavailable, "Detection unavailable, retry")
		return
	}

	outcome, err := h.engine.Run(r.Context(), req.AccountID, candidates)
	if err != nil {
		log.Error().Err(err).Str("account_id", req.AccountID).Msg("Decision workflow failed")
		writeError(w, http.StatusServiceUnavailable, "Verification workflow unavailable, retry")
		return
	}

	writeJSON(w, http.StatusOK, AuthorizeResponse{Outcome: outcome, Candidates: candidates})
}

// DetectHandler runs detection only, without capturing or deciding.
func (h *Handler) DetectHandler(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	detectCtx, cancel := h.detectionContext(r.Context())
	defer cancel()

	candidates, err := h.detector.Detect(detectCtx, accountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Detection failed")
		writeError(w, http.StatusServiceUnavailable, "Detection unavailable, retry")
		return
	}
	if candidates == nil {
		candidates = []detector.Candidate{}
	}

	writeJSON(w, http.StatusOK, DetectResponse{AccountID: accountID, Candidates: candidates})
}

// FingerprintHandler returns the stored fingerprint summary for an account.
func (h *Handler) FingerprintHandler(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	summary, err := h.db.FingerprintSummary(r.Context(), accountID, h.tagger)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load fingerprint summary")
		writeError(w, http.StatusServiceUnavailable, "Fingerprint store unavailable, retry")
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "No fingerprint stored for account")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// AccountActionsHandler lists the verification action history for an account,
// newest first.
func (h *Handler) AccountActionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	actions, err := h.db.ActionsForAccount(r.Context(), accountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Failed to list actions")
		writeError(w, http.StatusServiceUnavailable, "Action store unavailable, retry")
		return
	}
	if actions == nil {
		actions = []database.VerificationAction{}
	}

	writeJSON(w, http.StatusOK, actions)
}

// ActionHandler exposes one verification action by id.
func (h *Handler) ActionHandler(w http.ResponseWriter, r *http.Request) {
	actionID, ok := parseActionID(w, r)
	if !ok {
		return
	}

	action, err := h.db.GetAction(r.Context(), actionID)
	if err != nil {
		log.Error().Err(err).Int64("action_id", actionID).Msg("Failed to load action")
		writeError(w, http.StatusServiceUnavailable, "Action store unavailable, retry")
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "No action found with the specified id")
		return
	}

	writeJSON(w, http.StatusOK, action)
}

// ResolveActionHandler is the staff entry point: grants the standard role
// (idempotently) and marks the action resolved.
func (h *Handler) ResolveActionHandler(w http.ResponseWriter, r *http.Request) {
	actionID, ok := parseActionID(w, r)
	if !ok {
		return
	}

	outcome, err := h.engine.Resolve(r.Context(), actionID)
	if err != nil {
		if errors.Is(err, workflow.ErrActionNotFound) {
			writeError(w, http.StatusNotFound, "No action found with the specified id")
			return
		}
		log.Error().Err(err).Int64("action_id", actionID).Msg("Failed to resolve action")
		writeError(w, http.StatusServiceUnavailable, "Resolution unavailable, retry")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// ChallengeVerifyHandler accepts a proof-of-work solution; a valid one
// resolves the bound challenge action.
func (h *Handler) ChallengeVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req ChallengeVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	solution, actionID, err := h.challenges.VerifySolution(r.Context(), req.ChallengeID, req.Nonce, req.Hash)
	if err != nil {
		switch {
		case errors.Is(err, challenge.ErrChallengeNotFound):
			writeError(w, http.StatusNotFound, "Challenge not found")
		case errors.Is(err, challenge.ErrChallengeExpired):
			writeError(w, http.StatusGone, "Challenge expired")
		case errors.Is(err, challenge.ErrChallengeSolved):
			writeError(w, http.StatusConflict, "Challenge already solved")
		default:
			log.Error().Err(err).Str("challenge_id", req.ChallengeID).Msg("Challenge verification failed")
			writeError(w, http.StatusServiceUnavailable, "Verification unavailable, retry")
		}
		return
	}

	if !solution.Valid {
		writeJSON(w, http.StatusOK, ChallengeVerifyResponse{Valid: false, Message: "Solution rejected"})
		return
	}

	if _, err := h.engine.Resolve(r.Context(), actionID); err != nil {
		log.Error().Err(err).Int64("action_id", actionID).Msg("Failed to resolve challenge action")
		writeError(w, http.StatusServiceUnavailable, "Resolution unavailable, retry")
		return
	}

	writeJSON(w, http.StatusOK, ChallengeVerifyResponse{Valid: true})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequireAPIKey rejects requests without the configured key. An empty
// configured key disables the check (development mode).
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.APIKey != "" {
			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(h.cfg.APIKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "Invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// unsealPayload strips the transport envelope: when a payload AES key is
// configured, the fingerprint arrives as an AES-GCM sealed base64 string.
func (h *Handler) unsealPayload(raw json.RawMessage) ([]byte, error) {
	if len(h.aesKey) == 0 {
		return raw, nil
	}

	var sealed string
	if err := json.Unmarshal(raw, &sealed); err != nil {
		// Not a sealed string; let the normalizer decide.
		return raw, nil
	}

	return crypto.Decrypt(sealed, h.aesKey)
}

// detectionContext bounds a detection scan to the configured timeout.
func (h *Handler) detectionContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.cfg == nil || h.cfg.DetectionTimeoutSecs <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(h.cfg.DetectionTimeoutSecs)*time.Second)
}

func parseActionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["actionId"]
	actionID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "actionId must be a valid integer")
		return 0, false
	}
	return actionID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
