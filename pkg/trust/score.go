// Package trust turns collected evidence sub-signals into the final
// 0–100 trust score: site-type-aware weighting, normalization, and hard
// override rules applied in declaration order.
package trust

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

// Scorer computes trust scores. Pure and deterministic: identical
// inputs always yield an identical result.
type Scorer struct {
	cfg               *config.TrustConfig
	siteTypeThreshold float64
}

// NewScorer builds a scorer from the trust config and the site-type
// confidence threshold.
func NewScorer(cfg *config.TrustConfig, siteTypeThreshold float64) *Scorer {
	return &Scorer{cfg: cfg, siteTypeThreshold: siteTypeThreshold}
}

// Compute produces the trust result from the sub-signals, the (possibly
// nil) site classification, and the raised override flags.
//
// Signals missing from the input simply carry no weight; the remaining
// weights are renormalized to sum 1. Each present signal then contributes
// weight × raw × confidence, so weakly-evidenced signals pull the score
// toward 0 rather than toward their raw value.
func (s *Scorer) Compute(signals []models.SubSignal, siteType *models.SiteType, flags []string) *models.TrustResult {
	weights := s.weightVector(siteType)

	conf := make(map[models.SignalName]float64, len(signals))
	raw := make(map[models.SignalName]float64, len(signals))
	var total float64
	for _, sig := range signals {
		w, ok := weights[sig.Name]
		if !ok || w <= 0 {
			continue
		}
		conf[sig.Name] = clamp01(sig.Confidence)
		raw[sig.Name] = clamp01(sig.RawScore)
		total += w
	}

	score := 50.0 // no evidence at all: dead neutral
	if total > 0 {
		score = 0
		for name, r := range raw {
			score += (weights[name] / total) * r * conf[name] * 100
		}
	}
	base := int(math.Round(score))

	signalScores := make(map[models.SignalName]int, len(raw))
	for name, r := range raw {
		signalScores[name] = int(math.Round(r * 100))
	}

	final, applied, recommendations := s.applyOverrides(base, flags)

	result := &models.TrustResult{
		FinalScore:      final,
		RiskLevel:       models.RiskLevelFor(final),
		SignalScores:    signalScores,
		Overrides:       applied,
		Recommendations: recommendations,
	}
	result.Narrative = narrative(result, siteType, base)

	slog.Debug("Trust score computed",
		"base", base, "final", final, "risk", result.RiskLevel,
		"overrides", strings.Join(applied, ","))
	return result
}

// weightVector picks the site-type vector when the classification is
// confident enough and a vector exists, otherwise the default vector.
func (s *Scorer) weightVector(siteType *models.SiteType) map[models.SignalName]float64 {
	if siteType != nil && siteType.Confidence >= s.siteTypeThreshold {
		if vec, ok := s.cfg.SiteTypeWeights[siteType.Label]; ok {
			return vec
		}
	}
	return s.cfg.DefaultWeights
}

// applyOverrides runs the configured rules in declaration order against
// the raised flags. Every applied rule is recorded by name; clamps never
// raise the score.
func (s *Scorer) applyOverrides(score int, flags []string) (int, []string, []string) {
	raised := make(map[string]bool, len(flags))
	for _, f := range flags {
		raised[f] = true
	}

	applied := []string{}
	recommendations := []string{}
	for _, rule := range s.cfg.Overrides {
		if !raised[rule.Name] {
			continue
		}
		switch rule.Kind {
		case config.OverrideClamp:
			if score > rule.Value {
				score = rule.Value
			}
		case config.OverridePenalty:
			score -= rule.Value
			if score < 0 {
				score = 0
			}
		}
		applied = append(applied, rule.Name)
		if rule.Recommendation != "" {
			recommendations = append(recommendations, rule.Recommendation)
		}
	}
	return score, applied, recommendations
}

// narrative renders a short deterministic explanation of the verdict.
func narrative(result *models.TrustResult, siteType *models.SiteType, base int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trust score %d/100 (%s).", result.FinalScore, result.RiskLevel)
	if siteType != nil && siteType.Label != models.SiteTypeUnknown {
		fmt.Fprintf(&b, " Classified as a %s site.", siteType.Label)
	}
	if weakest, score, ok := weakestSignal(result.SignalScores); ok {
		fmt.Fprintf(&b, " Weakest signal: %s (%d/100).", weakest, score)
	}
	if len(result.Overrides) > 0 {
		fmt.Fprintf(&b, " Hard overrides applied: %s (weighted score before overrides: %d).",
			strings.Join(result.Overrides, ", "), base)
	}
	return b.String()
}

// weakestSignal finds the lowest-scoring signal, name-ordered on ties.
func weakestSignal(scores map[models.SignalName]int) (models.SignalName, int, bool) {
	if len(scores) == 0 {
		return "", 0, false
	}
	names := make([]models.SignalName, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	weakest := names[0]
	for _, name := range names[1:] {
		if scores[name] < scores[weakest] {
			weakest = name
		}
	}
	return weakest, scores[weakest], true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
