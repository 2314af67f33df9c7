package detector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"altguard/internal/database"
	"altguard/internal/similarity"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Threshold is the exclusive similarity cutoff: only candidates scoring
// strictly above it are reported.
const Threshold = 0.85

// Store is the enumeration surface the detector needs.
type Store interface {
	GetFingerprint(ctx context.Context, accountID string) (*database.Fingerprint, error)
	AllOtherAccounts(ctx context.Context, accountID string) ([]string, error)
	CandidateAccounts(ctx context.Context, target *database.Fingerprint) ([]string, error)
}

// Scorer computes pairwise similarity; satisfied by *similarity.Scorer.
type Scorer interface {
	Score(ctx context.Context, accountA, accountB string) (similarity.Result, error)
}

// Candidate is one account whose similarity to the target exceeds Threshold.
type Candidate struct {
	AccountID string            `json:"accountId"`
	Score     float64           `json:"score"`
	Result    similarity.Result `json:"result"`
}

// Detector scans stored fingerprints for likely alternate accounts of a
// target. Scoring is read-only and runs per-candidate under a concurrency cap.
type Detector struct {
	store     Store
	scorer    Scorer
	limit     int
	prefilter bool
}

func New(store Store, scorer Scorer, limit int, prefilter bool) *Detector {
	if limit < 1 {
		limit = 1
	}
	return &Detector{store: store, scorer: scorer, limit: limit, prefilter: prefilter}
}

// Detect returns candidates scoring strictly above Threshold against the
// target, ranked descending (ties broken by account id). A target without a
// stored fingerprint yields an empty list: no comparison basis, fail safe.
func (d *Detector) Detect(ctx context.Context, accountID string) ([]Candidate, error) {
	target, err := d.store.GetFingerprint(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target fingerprint: %w", err)
	}
	if target == nil {
		log.Debug().Str("account_id", accountID).Msg("No stored fingerprint, skipping detection")
		return nil, nil
	}

	others, err := d.enumerate(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(others) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		candidates []Candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)

	for _, other := range others {
		other := other
		g.Go(func() error {
			result, err := d.scorer.Score(gctx, accountID, other)
			if err != nil {
				return err
			}
			if result.Score > Threshold {
				mu.Lock()
				candidates = append(candidates, Candidate{
					AccountID: other,
					Score:     result.Score,
					Result:    result,
				})
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detection scan failed: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].AccountID < candidates[j].AccountID
	})

	if len(candidates) > 0 {
		log.Info().Str("account_id", accountID).
			Int("candidates", len(candidates)).
			Float64("top_score", candidates[0].Score).
			Msg("Alternate account candidates detected")
	}

	return candidates, nil
}

// enumerate picks the comparison set: a coarse hardware bucket when the
// prefilter is on, every other stored fingerprint otherwise.
func (d *Detector) enumerate(ctx context.Context, target *database.Fingerprint) ([]string, error) {
	if d.prefilter {
		ids, err := d.store.CandidateAccounts(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate candidate bucket: %w", err)
		}
		return ids, nil
	}

	ids, err := d.store.AllOtherAccounts(ctx, target.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate accounts: %w", err)
	}
	return ids, nil
}
