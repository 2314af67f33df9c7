package challenge

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"altguard/internal/config"
	"altguard/internal/crypto"
	"altguard/internal/database"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeSolved   = errors.New("challenge already solved")
)

// Store is the persistence surface for challenges and submitted solutions.
type Store interface {
	CreateChallenge(ctx context.Context, challenge *database.Challenge) error
	GetChallenge(ctx context.Context, id string) (*database.Challenge, error)
	MarkChallengeSolved(ctx context.Context, id string) error
	CreateSolution(ctx context.Context, solution *database.Solution) error
	CleanupExpiredChallenges(ctx context.Context) error
	CleanupOldSolutions(ctx context.Context, olderThan time.Duration) error
}

// Service issues and verifies argon2id proof-of-work verification
// challenges. Each challenge is bound to an unresolved challenge action;
// a valid solution reports the action id so the caller can resolve it.
type Service struct {
	cfg   *config.Config
	store Store
}

func NewService(cfg *config.Config, store Store) *Service {
	return &Service{cfg: cfg, store: store}
}

// Issue creates a challenge for the account and returns the delivery text.
func (s *Service) Issue(ctx context.Context, accountID string, actionID int64) (string, error) {
	salt, err := crypto.GenerateRandomBytes(s.cfg.Argon2SaltLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	challenge := &database.Challenge{
		ID:         uuid.New().String(),
		ActionID:   actionID,
		AccountID:  accountID,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Difficulty: s.cfg.Argon2Time,
		Memory:     s.cfg.Argon2Memory,
		Threads:    s.cfg.Argon2Threads,
		KeyLen:     s.cfg.Argon2KeyLength,
		Target:     s.cfg.Argon2TargetPrefix,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Duration(s.cfg.ChallengeExpiryMinutes) * time.Minute),
	}

	if err := s.store.CreateChallenge(ctx, challenge); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	return renderPayload(challenge), nil
}

// VerifySolution checks a submitted nonce/hash pair against the stored
// challenge, records the attempt, and returns the recorded solution plus the
// bound action id. The solution's Valid flag tells whether the work checks out.
func (s *Service) VerifySolution(ctx context.Context, challengeID, nonce, hash string) (*database.Solution, int64, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get challenge: %w", err)
	}
	if challenge == nil {
		return nil, 0, ErrChallengeNotFound
	}
	if time.Now().After(challenge.ExpiresAt) {
		return nil, 0, ErrChallengeExpired
	}
	if challenge.Solved {
		return nil, 0, ErrChallengeSolved
	}

	valid, err := verifyWork(challenge, nonce, hash)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to verify solution: %w", err)
	}

	solution := &database.Solution{
		ID:          uuid.New().String(),
		ChallengeID: challengeID,
		Nonce:       nonce,
		Hash:        hash,
		CreatedAt:   time.Now(),
		Valid:       valid,
	}

	if err := s.store.CreateSolution(ctx, solution); err != nil {
		return nil, 0, fmt.Errorf("failed to store solution: %w", err)
	}

	if valid {
		if err := s.store.MarkChallengeSolved(ctx, challengeID); err != nil {
			return nil, 0, fmt.Errorf("failed to mark challenge as solved: %w", err)
		}
	}

	return solution, challenge.ActionID, nil
}

func verifyWork(challenge *database.Challenge, nonce, providedHash string) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(challenge.Salt)
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	inputData := challenge.Salt + nonce

	hash := argon2.IDKey(
		[]byte(inputData),
		salt,
		challenge.Difficulty,
		challenge.Memory,
		challenge.Threads,
		challenge.KeyLen,
	)

	computedHash := hex.EncodeToString(hash)

	return computedHash == providedHash && strings.HasPrefix(computedHash, challenge.Target), nil
}

// StartCleanup runs the expiry sweep until ctx is cancelled.
func (s *Service) StartCleanup(ctx context.Context) {
	interval := time.Duration(s.cfg.ChallengeCleanupIntervalMins) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.CleanupExpiredChallenges(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup expired challenges")
			}
			if err := s.store.CleanupOldSolutions(ctx, 24*time.Hour); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old solutions")
			}
		}
	}
}

func renderPayload(c *database.Challenge) string {
	return fmt.Sprintf(
		"Additional verification is required to continue.\n"+
			"Solve the proof-of-work challenge below and submit the result.\n"+
			"challenge_id: %s\nsalt: %s\ntime: %d\nmemory: %d\nthreads: %d\nkey_len: %d\ntarget_prefix: %s\nexpires_at: %s",
		c.ID, c.Salt, c.Difficulty, c.Memory, c.Threads, c.KeyLen, c.Target,
		c.ExpiresAt.UTC().Format(time.RFC3339),
	)
}
