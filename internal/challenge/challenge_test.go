package challenge

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"altguard/internal/config"
	"altguard/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

type fakeStore struct {
	challenges map[string]*database.Challenge
	solutions  []*database.Solution
}

func newFakeStore() *fakeStore {
	return &fakeStore{challenges: make(map[string]*database.Challenge)}
}

func (f *fakeStore) CreateChallenge(_ context.Context, c *database.Challenge) error {
	f.challenges[c.ID] = c
	return nil
}

func (f *fakeStore) GetChallenge(_ context.Context, id string) (*database.Challenge, error) {
	return f.challenges[id], nil
}

func (f *fakeStore) MarkChallengeSolved(_ context.Context, id string) error {
	if c, ok := f.challenges[id]; ok {
		c.Solved = true
	}
	return nil
}

func (f *fakeStore) CreateSolution(_ context.Context, s *database.Solution) error {
	f.solutions = append(f.solutions, s)
	return nil
}

func (f *fakeStore) CleanupExpiredChallenges(context.Context) error { return nil }

func (f *fakeStore) CleanupOldSolutions(context.Context, time.Duration) error { return nil }

// testConfig keeps the work factor tiny so solving in-test is instant.
func testConfig() *config.Config {
	return &config.Config{
		Argon2Time:             1,
		Argon2Memory:           1024,
		Argon2Threads:          1,
		Argon2KeyLength:        16,
		Argon2SaltLength:       8,
		Argon2TargetPrefix:     "",
		ChallengeExpiryMinutes: 5,
	}
}

// solve computes the argon2id hash the verifier expects for a nonce.
func solve(t *testing.T, c *database.Challenge, nonce string) string {
	t.Helper()
	salt, err := base64.StdEncoding.DecodeString(c.Salt)
	require.NoError(t, err)
	hash := argon2.IDKey([]byte(c.Salt+nonce), salt, c.Difficulty, c.Memory, c.Threads, c.KeyLen)
	return hex.EncodeToString(hash)
}

func issueOne(t *testing.T, svc *Service, store *fakeStore) *database.Challenge {
	t.Helper()
	payload, err := svc.Issue(context.Background(), "acct", 7)
	require.NoError(t, err)
	require.Contains(t, payload, "challenge_id:")

	require.Len(t, store.challenges, 1)
	for _, c := range store.challenges {
		return c
	}
	return nil
}

func TestIssueBindsAction(t *testing.T) {
	store := newFakeStore()
	svc := NewService(testConfig(), store)

	c := issueOne(t, svc, store)
	assert.Equal(t, int64(7), c.ActionID)
	assert.Equal(t, "acct", c.AccountID)
	assert.NotEmpty(t, c.Salt)
	assert.True(t, c.ExpiresAt.After(time.Now()))
}

func TestVerifyValidSolution(t *testing.T) {
	store := newFakeStore()
	svc := NewService(testConfig(), store)

	c := issueOne(t, svc, store)
	hash := solve(t, c, "nonce-1")

	solution, actionID, err := svc.VerifySolution(context.Background(), c.ID, "nonce-1", hash)
	require.NoError(t, err)

	assert.True(t, solution.Valid)
	assert.Equal(t, int64(7), actionID)
	assert.True(t, store.challenges[c.ID].Solved)
	require.Len(t, store.solutions, 1)
}

func TestVerifyWrongHash(t *testing.T) {
	store := newFakeStore()
	svc := NewService(testConfig(), store)

	c := issueOne(t, svc, store)

	solution, actionID, err := svc.VerifySolution(context.Background(), c.ID, "nonce-1", "deadbeef")
	require.NoError(t, err)

	// The attempt is recorded but invalid; the challenge stays open.
	assert.False(t, solution.Valid)
	assert.Equal(t, int64(7), actionID)
	assert.False(t, store.challenges[c.ID].Solved)
	require.Len(t, store.solutions, 1)
}

func TestVerifyTargetPrefixEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.Argon2TargetPrefix = "zz" // hex output can never start with this
	store := newFakeStore()
	svc := NewService(cfg, store)

	c := issueOne(t, svc, store)
	hash := solve(t, c, "nonce-1")

	solution, _, err := svc.VerifySolution(context.Background(), c.ID, "nonce-1", hash)
	require.NoError(t, err)
	assert.False(t, solution.Valid)
}

func TestVerifyUnknownChallenge(t *testing.T) {
	svc := NewService(testConfig(), newFakeStore())

	_, _, err := svc.VerifySolution(context.Background(), "missing", "n", "h")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyExpiredChallenge(t *testing.T) {
	store := newFakeStore()
	svc := NewService(testConfig(), store)

	c := issueOne(t, svc, store)
	c.ExpiresAt = time.Now().Add(-time.Minute)

	_, _, err := svc.VerifySolution(context.Background(), c.ID, "n", "h")
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestVerifySolvedChallenge(t *testing.T) {
	store := newFakeStore()
	svc := NewService(testConfig(), store)

	c := issueOne(t, svc, store)
	hash := solve(t, c, "nonce-1")

	_, _, err := svc.VerifySolution(context.Background(), c.ID, "nonce-1", hash)
	require.NoError(t, err)

	_, _, err = svc.VerifySolution(context.Background(), c.ID, "nonce-2", hash)
	assert.ErrorIs(t, err, ErrChallengeSolved)
}
