package service

import (
	"math"

	"github.com/stemsi/exstem-prep/internal/model"
)

// Speed and consistency are not measured yet. They stay fixed so that readiness
// values remain comparable across history.
const (
	PlaceholderSpeed       = 75.0
	ConsistencyEstablished = 80.0
	ConsistencyBuilding    = 40.0

	// consistencyMinAttempts is the history length above which consistency is established.
	consistencyMinAttempts = 2
	masteryPerAttempt      = 5.0
)

// ComputeReadiness projects a user's history into a 0-100 readiness score.
// It is total: an empty history scores zero.
func ComputeReadiness(history []model.ExamHistoryItem) model.ReadinessScore {
	n := len(history)
	if n == 0 {
		return model.ReadinessScore{Total: 0, Label: model.ReadinessNotReady}
	}

	var sum float64
	for _, h := range history {
		sum += clampPercent(h.Accuracy)
	}
	accuracy := sum / float64(n)
	mastery := math.Min(100, float64(n)*masteryPerAttempt)
	speed := PlaceholderSpeed
	consistency := ConsistencyBuilding
	if n > consistencyMinAttempts {
		consistency = ConsistencyEstablished
	}

	// Integer weights keep x.5 totals exact before rounding half away from zero.
	weighted := (4*accuracy + 3*mastery + 2*speed + consistency) / 10
	total := int(math.Round(weighted))
	total = max(0, min(100, total))

	return model.ReadinessScore{
		Total: total,
		Label: readinessLabel(total),
		Breakdown: model.ReadinessBreakdown{
			Accuracy:    accuracy,
			Mastery:     mastery,
			Speed:       speed,
			Consistency: consistency,
		},
	}
}

func readinessLabel(total int) model.ReadinessLabel {
	switch {
	case total >= 80:
		return model.ReadinessExamReady
	case total >= 60:
		return model.ReadinessAlmostReady
	case total >= 40:
		return model.ReadinessFair
	default:
		return model.ReadinessNotReady
	}
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
