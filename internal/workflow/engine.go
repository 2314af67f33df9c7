package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"altguard/internal/database"
	"altguard/internal/detector"

	"github.com/rs/zerolog/log"
)

// ErrDeliveryRefused is returned by a Messenger when the recipient refuses
// out-of-band delivery. The engine recovers locally: the pending action is
// marked resolved instead of hanging forever.
var ErrDeliveryRefused = errors.New("message delivery refused by recipient")

// ErrActionNotFound is returned by Resolve for an unknown action id.
var ErrActionNotFound = errors.New("verification action not found")

// ActionStore persists the audit trail of policy decisions.
type ActionStore interface {
	InsertAction(ctx context.Context, accountID string, kind database.ActionKind, details string, resolved bool) (int64, error)
	GetAction(ctx context.Context, actionID int64) (*database.VerificationAction, error)
	ResolveAction(ctx context.Context, actionID int64) error
}

// RoleDirectory is the host-platform role surface, keyed by account id.
type RoleDirectory interface {
	HasRole(ctx context.Context, accountID, roleID string) (bool, error)
	GrantRole(ctx context.Context, accountID, roleID string) error
	Ban(ctx context.Context, accountID, reason string) error
}

// Messenger delivers out-of-band text to an account or a staff channel.
type Messenger interface {
	SendAccount(ctx context.Context, accountID, message string) error
	SendStaff(ctx context.Context, channelID, message string) error
}

// ChallengeIssuer creates a verification challenge bound to an action and
// returns the text to deliver to the account.
type ChallengeIssuer interface {
	Issue(ctx context.Context, accountID string, actionID int64) (string, error)
}

// Config carries the policy and identifiers resolved once per engine, not
// re-read from a shared configuration store on every run.
type Config struct {
	Policy         Policy
	StandardRoleID string
	StaffChannelID string
}

// Outcome summarizes one engine run or resolution.
type Outcome struct {
	ActionID   int64               `json:"actionId"`
	Kind       database.ActionKind `json:"kind"`
	Resolved   bool                `json:"resolved"`
	Candidates int                 `json:"candidates"`
}

// Engine drives the verification decision state machine: it consumes
// detector output and records exactly one auditable action per run.
type Engine struct {
	cfg       Config
	actions   ActionStore
	roles     RoleDirectory
	messenger Messenger
	issuer    ChallengeIssuer
}

func NewEngine(cfg Config, actions ActionStore, roles RoleDirectory, messenger Messenger, issuer ChallengeIssuer) *Engine {
	return &Engine{
		cfg:       cfg,
		actions:   actions,
		roles:     roles,
		messenger: messenger,
		issuer:    issuer,
	}
}

// Run applies the configured policy to a detection result. Re-running for an
// account that already holds the standard role is a no-op resolution: no
// second grant, no second notification.
func (e *Engine) Run(ctx context.Context, accountID string, candidates []detector.Candidate) (Outcome, error) {
	held, err := e.roles.HasRole(ctx, accountID, e.cfg.StandardRoleID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to check role: %w", err)
	}
	if held {
		return e.record(ctx, accountID, database.ActionApprove,
			"Account already holds the standard role; duplicate authorization run.", true, len(candidates))
	}

	if len(candidates) == 0 {
		if err := e.roles.GrantRole(ctx, accountID, e.cfg.StandardRoleID); err != nil {
			return Outcome{}, fmt.Errorf("failed to grant role: %w", err)
		}
		return e.record(ctx, accountID, database.ActionApprove,
			"No alternate-account candidates above threshold.", true, 0)
	}

	details := describeCandidates(candidates)

	switch e.cfg.Policy {
	case PolicyReject:
		if err := e.roles.Ban(ctx, accountID, "Alternate account detected"); err != nil {
			return Outcome{}, fmt.Errorf("failed to ban account: %w", err)
		}
		return e.record(ctx, accountID, database.ActionReject, details, true, len(candidates))

	case PolicyChallenge:
		return e.runChallenge(ctx, accountID, details, candidates)

	case PolicyEscalate:
		outcome, err := e.record(ctx, accountID, database.ActionEscalate, details, false, len(candidates))
		if err != nil {
			return Outcome{}, err
		}
		staffMsg := fmt.Sprintf("Account %s requires manual review (action #%d).\n%s",
			accountID, outcome.ActionID, details)
		if err := e.messenger.SendStaff(ctx, e.cfg.StaffChannelID, staffMsg); err != nil {
			log.Error().Err(err).Str("account_id", accountID).
				Int64("action_id", outcome.ActionID).Msg("Failed to notify staff")
		}
		return outcome, nil

	case PolicyApprove:
		if err := e.roles.GrantRole(ctx, accountID, e.cfg.StandardRoleID); err != nil {
			return Outcome{}, fmt.Errorf("failed to grant role: %w", err)
		}
		return e.record(ctx, accountID, database.ActionApprove,
			"Approved despite detection result.\n"+details, true, len(candidates))

	default:
		return Outcome{}, fmt.Errorf("unhandled detection policy: %s", e.cfg.Policy)
	}
}

func (e *Engine) runChallenge(ctx context.Context, accountID, details string, candidates []detector.Candidate) (Outcome, error) {
	actionID, err := e.actions.InsertAction(ctx, accountID, database.ActionChallenge, details, false)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record challenge action: %w", err)
	}

	payload, err := e.issuer.Issue(ctx, accountID, actionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to issue challenge: %w", err)
	}

	if err := e.messenger.SendAccount(ctx, accountID, payload); err != nil {
		if errors.Is(err, ErrDeliveryRefused) {
			// Cannot reach the account; resolve rather than leave the
			// action pending forever.
			log.Warn().Str("account_id", accountID).Int64("action_id", actionID).
				Msg("Challenge delivery refused, resolving action")
			if err := e.actions.ResolveAction(ctx, actionID); err != nil {
				return Outcome{}, fmt.Errorf("failed to resolve undeliverable challenge: %w", err)
			}
			return Outcome{ActionID: actionID, Kind: database.ActionChallenge, Resolved: true, Candidates: len(candidates)}, nil
		}
		return Outcome{}, fmt.Errorf("failed to deliver challenge: %w", err)
	}

	log.Info().Str("account_id", accountID).Int64("action_id", actionID).
		Msg("Verification challenge delivered")
	return Outcome{ActionID: actionID, Kind: database.ActionChallenge, Resolved: false, Candidates: len(candidates)}, nil
}

// Resolve is the external entry point for completing a pending action: a
// staff decision or a verified challenge solution referencing the action id.
// The role grant is idempotent.
func (e *Engine) Resolve(ctx context.Context, actionID int64) (Outcome, error) {
	action, err := e.actions.GetAction(ctx, actionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load action: %w", err)
	}
	if action == nil {
		return Outcome{}, ErrActionNotFound
	}

	held, err := e.roles.HasRole(ctx, action.AccountID, e.cfg.StandardRoleID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to check role: %w", err)
	}

	if !held {
		if err := e.roles.GrantRole(ctx, action.AccountID, e.cfg.StandardRoleID); err != nil {
			return Outcome{}, fmt.Errorf("failed to grant role: %w", err)
		}
		if err := e.messenger.SendAccount(ctx, action.AccountID,
			"Your account has been verified. You now have access."); err != nil {
			// Best effort only; the account is verified either way.
			log.Debug().Err(err).Str("account_id", action.AccountID).
				Msg("Verification notice not delivered")
		}
	}

	if err := e.actions.ResolveAction(ctx, actionID); err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve action: %w", err)
	}

	log.Info().Str("account_id", action.AccountID).Int64("action_id", actionID).
		Str("kind", string(action.Kind)).Msg("Verification action resolved")

	return Outcome{ActionID: actionID, Kind: action.Kind, Resolved: true}, nil
}

func (e *Engine) record(ctx context.Context, accountID string, kind database.ActionKind, details string, resolved bool, candidates int) (Outcome, error) {
	actionID, err := e.actions.InsertAction(ctx, accountID, kind, details, resolved)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to record %s action: %w", kind, err)
	}
	log.Info().Str("account_id", accountID).Int64("action_id", actionID).
		Str("kind", string(kind)).Bool("resolved", resolved).
		Int("candidates", candidates).Msg("Verification action recorded")
	return Outcome{ActionID: actionID, Kind: kind, Resolved: resolved, Candidates: candidates}, nil
}

// describeCandidates renders the top matches as human-readable rationale for
// the audit record.
func describeCandidates(candidates []detector.Candidate) string {
	limit := len(candidates)
	if limit > 3 {
		limit = 3
	}

	lines := make([]string, 0, limit+1)
	lines = append(lines, "Potential alternate accounts detected:")
	for _, c := range candidates[:limit] {
		lines = append(lines, fmt.Sprintf("- account %s (%.1f%% similarity)", c.AccountID, c.Score*100))
	}
	return strings.Join(lines, "\n")
}
