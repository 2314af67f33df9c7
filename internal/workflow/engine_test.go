package workflow

import (
	"context"
	"testing"

	"altguard/internal/database"
	"altguard/internal/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActions struct {
	nextID  int64
	actions map[int64]*database.VerificationAction
}

func newFakeActions() *fakeActions {
	return &fakeActions{actions: make(map[int64]*database.VerificationAction)}
}

func (f *fakeActions) InsertAction(_ context.Context, accountID string, kind database.ActionKind, details string, resolved bool) (int64, error) {
	f.nextID++
	f.actions[f.nextID] = &database.VerificationAction{
		ID:        f.nextID,
		AccountID: accountID,
		Kind:      kind,
		Details:   details,
		Resolved:  resolved,
	}
	return f.nextID, nil
}

func (f *fakeActions) GetAction(_ context.Context, actionID int64) (*database.VerificationAction, error) {
	return f.actions[actionID], nil
}

func (f *fakeActions) ResolveAction(_ context.Context, actionID int64) error {
	if a, ok := f.actions[actionID]; ok {
		a.Resolved = true
	}
	return nil
}

type fakeRoles struct {
	roles  map[string]bool
	grants int
	bans   []string
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: make(map[string]bool)}
}

func (f *fakeRoles) HasRole(_ context.Context, accountID, _ string) (bool, error) {
	return f.roles[accountID], nil
}

func (f *fakeRoles) GrantRole(_ context.Context, accountID, _ string) error {
	f.roles[accountID] = true
	f.grants++
	return nil
}

func (f *fakeRoles) Ban(_ context.Context, accountID, _ string) error {
	f.bans = append(f.bans, accountID)
	return nil
}

type fakeMessenger struct {
	accountMsgs []string
	staffMsgs   []string
	accountErr  error
}

func (f *fakeMessenger) SendAccount(_ context.Context, _, message string) error {
	if f.accountErr != nil {
		return f.accountErr
	}
	f.accountMsgs = append(f.accountMsgs, message)
	return nil
}

func (f *fakeMessenger) SendStaff(_ context.Context, _, message string) error {
	f.staffMsgs = append(f.staffMsgs, message)
	return nil
}

type fakeIssuer struct {
	issued []int64
}

func (f *fakeIssuer) Issue(_ context.Context, _ string, actionID int64) (string, error) {
	f.issued = append(f.issued, actionID)
	return "solve this to verify", nil
}

type fixture struct {
	engine    *Engine
	actions   *fakeActions
	roles     *fakeRoles
	messenger *fakeMessenger
	issuer    *fakeIssuer
}

func newFixture(policy Policy) *fixture {
	f := &fixture{
		actions:   newFakeActions(),
		roles:     newFakeRoles(),
		messenger: &fakeMessenger{},
		issuer:    &fakeIssuer{},
	}
	f.engine = NewEngine(Config{
		Policy:         policy,
		StandardRoleID: "role-1",
		StaffChannelID: "staff-1",
	}, f.actions, f.roles, f.messenger, f.issuer)
	return f
}

func candidates(scores ...float64) []detector.Candidate {
	out := make([]detector.Candidate, 0, len(scores))
	for i, s := range scores {
		out = append(out, detector.Candidate{
			AccountID: string(rune('a' + i)),
			Score:     s,
		})
	}
	return out
}

func TestRunCleanAccountApproved(t *testing.T) {
	// An account with no candidates is approved regardless of policy.
	for _, policy := range []Policy{PolicyReject, PolicyChallenge, PolicyEscalate, PolicyApprove} {
		t.Run(policy.String(), func(t *testing.T) {
			f := newFixture(policy)

			outcome, err := f.engine.Run(context.Background(), "acct", nil)
			require.NoError(t, err)

			assert.Equal(t, database.ActionApprove, outcome.Kind)
			assert.True(t, outcome.Resolved)
			assert.Equal(t, 1, f.roles.grants)
			assert.Empty(t, f.roles.bans)
			assert.Empty(t, f.issuer.issued)
		})
	}
}

func TestRunIdempotentApproval(t *testing.T) {
	f := newFixture(PolicyReject)

	_, err := f.engine.Run(context.Background(), "acct", nil)
	require.NoError(t, err)

	// Second run: role already held, no second grant, still one action recorded
	// per run.
	outcome, err := f.engine.Run(context.Background(), "acct", nil)
	require.NoError(t, err)

	assert.Equal(t, database.ActionApprove, outcome.Kind)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, 1, f.roles.grants)
	assert.Len(t, f.actions.actions, 2)
}

func TestRunRejectPolicy(t *testing.T) {
	f := newFixture(PolicyReject)

	outcome, err := f.engine.Run(context.Background(), "acct", candidates(0.95))
	require.NoError(t, err)

	assert.Equal(t, database.ActionReject, outcome.Kind)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, []string{"acct"}, f.roles.bans)
	assert.Equal(t, 0, f.roles.grants)
}

func TestRunChallengePolicy(t *testing.T) {
	f := newFixture(PolicyChallenge)

	outcome, err := f.engine.Run(context.Background(), "acct", candidates(0.9))
	require.NoError(t, err)

	assert.Equal(t, database.ActionChallenge, outcome.Kind)
	assert.False(t, outcome.Resolved)
	assert.Equal(t, []int64{outcome.ActionID}, f.issuer.issued)
	require.Len(t, f.messenger.accountMsgs, 1)
	assert.Equal(t, 0, f.roles.grants)

	stored := f.actions.actions[outcome.ActionID]
	require.NotNil(t, stored)
	assert.False(t, stored.Resolved)
}

func TestRunChallengeDeliveryRefused(t *testing.T) {
	f := newFixture(PolicyChallenge)
	f.messenger.accountErr = ErrDeliveryRefused

	outcome, err := f.engine.Run(context.Background(), "acct", candidates(0.9))
	require.NoError(t, err)

	// Undeliverable challenge resolves instead of hanging pending.
	assert.True(t, outcome.Resolved)
	assert.True(t, f.actions.actions[outcome.ActionID].Resolved)
	assert.Equal(t, 0, f.roles.grants)
}

func TestRunEscalatePolicy(t *testing.T) {
	f := newFixture(PolicyEscalate)

	outcome, err := f.engine.Run(context.Background(), "acct", candidates(0.97, 0.91))
	require.NoError(t, err)

	assert.Equal(t, database.ActionEscalate, outcome.Kind)
	assert.False(t, outcome.Resolved)
	require.Len(t, f.messenger.staffMsgs, 1)
	assert.Contains(t, f.messenger.staffMsgs[0], "acct")
	assert.Equal(t, 0, f.roles.grants)
}

func TestRunApprovePolicy(t *testing.T) {
	f := newFixture(PolicyApprove)

	outcome, err := f.engine.Run(context.Background(), "acct", candidates(0.99))
	require.NoError(t, err)

	assert.Equal(t, database.ActionApprove, outcome.Kind)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, 1, f.roles.grants)
	assert.Contains(t, f.actions.actions[outcome.ActionID].Details, "despite")
}

func TestRunDetailsCiteTopCandidates(t *testing.T) {
	f := newFixture(PolicyEscalate)

	outcome, err := f.engine.Run(context.Background(), "acct",
		candidates(0.99, 0.95, 0.91, 0.88))
	require.NoError(t, err)

	details := f.actions.actions[outcome.ActionID].Details
	assert.Contains(t, details, "account a (99.0% similarity)")
	assert.Contains(t, details, "account c (91.0% similarity)")
	// Only the top three make the audit record.
	assert.NotContains(t, details, "account d")
}

func TestResolvePendingAction(t *testing.T) {
	f := newFixture(PolicyEscalate)

	run, err := f.engine.Run(context.Background(), "acct", candidates(0.9))
	require.NoError(t, err)
	require.False(t, run.Resolved)

	outcome, err := f.engine.Resolve(context.Background(), run.ActionID)
	require.NoError(t, err)

	assert.True(t, outcome.Resolved)
	assert.Equal(t, database.ActionEscalate, outcome.Kind)
	assert.Equal(t, 1, f.roles.grants)
	assert.True(t, f.actions.actions[run.ActionID].Resolved)
	require.Len(t, f.messenger.accountMsgs, 1)
	assert.Contains(t, f.messenger.accountMsgs[0], "verified")
}

func TestResolveAlreadyGranted(t *testing.T) {
	f := newFixture(PolicyEscalate)

	run, err := f.engine.Run(context.Background(), "acct", candidates(0.9))
	require.NoError(t, err)
	f.roles.roles["acct"] = true

	_, err = f.engine.Resolve(context.Background(), run.ActionID)
	require.NoError(t, err)

	assert.Equal(t, 0, f.roles.grants)
	assert.Empty(t, f.messenger.accountMsgs)
}

func TestResolveUnknownAction(t *testing.T) {
	f := newFixture(PolicyEscalate)

	_, err := f.engine.Resolve(context.Background(), 404)
	assert.ErrorIs(t, err, ErrActionNotFound)
}
