package similarity

import (
	"context"
	"fmt"
	"math"

	"altguard/internal/database"
	"altguard/internal/fingerprint"
)

// Component weights, summing to 1.0. Canvas is reserved at zero weight: no
// canvas data is retained, so its sub-score is always 0.
const (
	WeightHardware  = 0.30
	WeightCanvas    = 0.00
	WeightWebGL     = 0.25
	WeightSystem    = 0.15
	WeightAudio     = 0.12
	WeightLanguages = 0.08
	WeightFonts     = 0.05
	WeightPlugins   = 0.04
	WeightNetwork   = 0.01
)

// Store is the read surface the scorer needs: the parent records plus the two
// set aggregates that let Jaccard-style ratios run inside the database.
type Store interface {
	GetFingerprint(ctx context.Context, accountID string) (*database.Fingerprint, error)
	CountMatchingValues(ctx context.Context, set database.AttributeSet, accountA, accountB string) (int, error)
	CountDistinctValues(ctx context.Context, set database.AttributeSet, accountA, accountB string) (int, error)
}

// Components are the per-factor sub-scores behind one similarity result.
type Components struct {
	Hardware  float64 `json:"hardware"`
	Canvas    float64 `json:"canvas"`
	WebGL     float64 `json:"webgl"`
	System    float64 `json:"system"`
	Audio     float64 `json:"audio"`
	Languages float64 `json:"languages"`
	Fonts     float64 `json:"fonts"`
	Plugins   float64 `json:"plugins"`
	Network   float64 `json:"network"`
}

// Result is the ephemeral outcome of scoring one account pair. It is
// recomputed on every detection run and never persisted.
type Result struct {
	AccountA   string     `json:"accountA"`
	AccountB   string     `json:"accountB"`
	Score      float64    `json:"score"`
	Components Components `json:"components"`
}

// Scorer computes the weighted similarity between two stored fingerprints.
// Every comparison requires both sides to carry a value: two accounts that
// both lack a field never match on it.
type Scorer struct {
	store  Store
	tagger fingerprint.Tagger
}

func NewScorer(store Store, tagger fingerprint.Tagger) *Scorer {
	if tagger == nil {
		tagger = fingerprint.DefaultTagger
	}
	return &Scorer{store: store, tagger: tagger}
}

// Score returns the weighted similarity in [0, 1] between two accounts, with
// component sub-scores. A zero Result is returned when either account has no
// stored fingerprint.
func (s *Scorer) Score(ctx context.Context, accountA, accountB string) (Result, error) {
	result := Result{AccountA: accountA, AccountB: accountB}

	fpA, err := s.store.GetFingerprint(ctx, accountA)
	if err != nil {
		return result, fmt.Errorf("failed to load fingerprint for %s: %w", accountA, err)
	}
	fpB, err := s.store.GetFingerprint(ctx, accountB)
	if err != nil {
		return result, fmt.Errorf("failed to load fingerprint for %s: %w", accountB, err)
	}
	if fpA == nil || fpB == nil {
		return result, nil
	}

	result.Components.Hardware = hardwareScore(fpA, fpB)
	result.Components.WebGL = webglScore(fpA, fpB)
	result.Components.System = s.systemScore(fpA, fpB)
	result.Components.Audio = audioScore(fpA, fpB)
	result.Components.Network = networkScore(fpA, fpB)

	if result.Components.Languages, err = s.setRatio(ctx, database.SetLanguages, accountA, accountB); err != nil {
		return result, err
	}
	if result.Components.Fonts, err = s.setRatio(ctx, database.SetFonts, accountA, accountB); err != nil {
		return result, err
	}
	if result.Components.Plugins, err = s.setRatio(ctx, database.SetPlugins, accountA, accountB); err != nil {
		return result, err
	}

	total := WeightHardware*result.Components.Hardware +
		WeightCanvas*result.Components.Canvas +
		WeightWebGL*result.Components.WebGL +
		WeightSystem*result.Components.System +
		WeightAudio*result.Components.Audio +
		WeightLanguages*result.Components.Languages +
		WeightFonts*result.Components.Fonts +
		WeightPlugins*result.Components.Plugins +
		WeightNetwork*result.Components.Network

	result.Score = math.Min(total, 1.0)
	return result, nil
}

func hardwareScore(a, b *database.Fingerprint) float64 {
	score := 0.0
	if a.HardwareConcurrency == b.HardwareConcurrency && a.HardwareConcurrency > 0 {
		score += 0.4
	}
	if a.DeviceMemory == b.DeviceMemory && a.DeviceMemory > 0 {
		score += 0.3
	}
	if a.ScreenWidth == b.ScreenWidth && a.ScreenHeight == b.ScreenHeight &&
		a.ScreenWidth > 0 && a.ScreenHeight > 0 {
		score += 0.3
	}
	return score
}

func webglScore(a, b *database.Fingerprint) float64 {
	score := 0.0
	if a.WebGLUnmaskedVendor == b.WebGLUnmaskedVendor && a.WebGLUnmaskedVendor != "" {
		score += 0.5
	}
	if a.WebGLUnmaskedRenderer == b.WebGLUnmaskedRenderer && a.WebGLUnmaskedRenderer != "" {
		score += 0.5
	}
	return score
}

func (s *Scorer) systemScore(a, b *database.Fingerprint) float64 {
	score := 0.0
	if a.Platform == b.Platform && a.Platform != "" {
		score += 0.4
	}
	if a.ScreenColorDepth == b.ScreenColorDepth && a.ScreenColorDepth > 0 {
		score += 0.3
	}
	if a.UserAgent != "" && b.UserAgent != "" && s.tagger(a.UserAgent) == s.tagger(b.UserAgent) {
		score += 0.3
	}
	return score
}

func audioScore(a, b *database.Fingerprint) float64 {
	if a.AudioFingerprint == b.AudioFingerprint && a.AudioFingerprint != "" {
		return 1.0
	}
	return 0.0
}

func networkScore(a, b *database.Fingerprint) float64 {
	score := 0.0
	if a.NetworkEffectiveType == b.NetworkEffectiveType && a.NetworkEffectiveType != "" {
		score += 0.5
	}
	if a.NetworkDownlink > 0 && b.NetworkDownlink > 0 &&
		math.Abs(a.NetworkDownlink-b.NetworkDownlink) < 1.0 {
		score += 0.5
	}
	return score
}

// setRatio is (matching values) / (distinct values across the union) for one
// child relation. Two empty sets yield 0, never a match.
func (s *Scorer) setRatio(ctx context.Context, set database.AttributeSet, accountA, accountB string) (float64, error) {
	matching, err := s.store.CountMatchingValues(ctx, set, accountA, accountB)
	if err != nil {
		return 0, fmt.Errorf("failed to count matching %s: %w", set, err)
	}

	distinct, err := s.store.CountDistinctValues(ctx, set, accountA, accountB)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct %s: %w", set, err)
	}

	if distinct == 0 {
		return 0, nil
	}
	return float64(matching) / float64(distinct), nil
}
