package osint

import (
	"fmt"
	"sort"

	"github.com/trustlens/trustlens/pkg/config"
	"github.com/trustlens/trustlens/pkg/models"
)

// trustRank orders trust levels for deterministic "most trusted" picks.
func trustRank(level string) int {
	switch level {
	case config.TrustHigh:
		return 3
	case config.TrustMedium:
		return 2
	case config.TrustLow:
		return 1
	}
	return 0
}

// WeightFunc returns the effective consensus weight for a source,
// allowing the reputation tracker to adjust the configured base weight.
type WeightFunc func(spec *config.SourceSpec) float64

// BaseWeight is the identity WeightFunc (no reputation adjustment).
func BaseWeight(spec *config.SourceSpec) float64 { return spec.BaseWeight }

// Resolve aggregates per-source malicious/clean verdicts into one
// consensus with explicit conflict preservation.
//
// Each source votes contribution = weight × confidence, with malicious
// votes additionally scaled by the source's confidence bias. The result
// is order-independent: permuting the input produces identical output.
func Resolve(
	verdicts []models.SourceVerdict,
	specs map[string]*config.SourceSpec,
	highConfidence float64,
	weightOf WeightFunc,
) (*models.ConsensusResult, []models.ConflictRecord) {
	if len(verdicts) == 0 {
		return nil, nil
	}
	if weightOf == nil {
		weightOf = BaseWeight
	}

	var sumMalicious, sumClean float64
	var maliciousVoters, cleanVoters []models.SourceVerdict

	for _, v := range verdicts {
		spec, ok := specs[v.Source]
		if !ok {
			// Unregistered sources vote with a neutral weight.
			spec = &config.SourceSpec{Name: v.Source, BaseWeight: 0.5, ConfidenceBias: 1.0, TrustLevel: config.TrustUnknown}
		}
		contribution := weightOf(spec) * v.Confidence
		if v.Malicious {
			bias := spec.ConfidenceBias
			if bias <= 0 {
				bias = 1.0
			}
			sumMalicious += contribution * bias
			maliciousVoters = append(maliciousVoters, v)
		} else {
			sumClean += contribution
			cleanVoters = append(cleanVoters, v)
		}
	}

	total := sumMalicious + sumClean
	if total == 0 {
		return nil, nil
	}

	ratio := sumMalicious / total
	malicious := ratio >= 0.5
	confidence := ratio
	if !malicious {
		confidence = 1 - ratio
	}

	result := &models.ConsensusResult{
		Malicious:      malicious,
		MaliciousRatio: ratio,
		Confidence:     confidence * 100,
		SourceCount:    len(verdicts),
	}
	result.Confirmed = confirmed(result, verdicts, highConfidence)

	var conflicts []models.ConflictRecord
	if len(maliciousVoters) > 0 && len(cleanVoters) > 0 {
		top := mostTrusted(maliciousVoters)
		bottom := mostTrusted(cleanVoters)
		conflicts = append(conflicts, models.ConflictRecord{
			MaliciousSide: top.Source,
			CleanSide:     bottom.Source,
			Explanation: fmt.Sprintf(
				"%s (%s trust, confidence %.2f) reports malicious while %s (%s trust, confidence %.2f) reports clean; weighted malicious ratio %.2f resolved the verdict as %s",
				top.Source, top.TrustLevel, top.Confidence,
				bottom.Source, bottom.TrustLevel, bottom.Confidence,
				ratio, verdictWord(malicious)),
		})
	}
	return result, conflicts
}

func verdictWord(malicious bool) string {
	if malicious {
		return "malicious"
	}
	return "clean"
}

// mostTrusted picks the highest-trust, then highest-confidence voter,
// with a name tie-break for determinism.
func mostTrusted(voters []models.SourceVerdict) models.SourceVerdict {
	sorted := make([]models.SourceVerdict, len(voters))
	copy(sorted, voters)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := trustRank(sorted[i].TrustLevel), trustRank(sorted[j].TrustLevel)
		if ri != rj {
			return ri > rj
		}
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].Source < sorted[j].Source
	})
	return sorted[0]
}

// confirmed applies the confirmation rule: ≥3 sources in agreement,
// ≥2 high-trust sources in agreement, or a single high-trust source at
// or above the high-confidence threshold.
func confirmed(result *models.ConsensusResult, verdicts []models.SourceVerdict, highConfidence float64) bool {
	agreeing := 0
	highTrustAgreeing := 0
	var loneHighTrust *models.SourceVerdict

	for i, v := range verdicts {
		if v.Malicious != result.Malicious {
			continue
		}
		agreeing++
		if v.TrustLevel == config.TrustHigh {
			highTrustAgreeing++
			loneHighTrust = &verdicts[i]
		}
	}

	switch {
	case agreeing >= 3:
		return true
	case highTrustAgreeing >= 2:
		return true
	case highTrustAgreeing == 1 && loneHighTrust.Confidence >= highConfidence:
		return true
	}
	return false
}
