package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-prep/internal/model"
)

// DefaultPassThreshold is the accuracy at or above which the recommendation is positive.
const DefaultPassThreshold = 70.0

// weakRatio is the correctness ratio below which a topic is weak; exactly half is not.
const weakRatio = 0.5

// Grader turns a submitted session into an ExamResult. Grade is pure: the same
// session, submission time and history always produce the same result.
type Grader struct {
	passThreshold float64
}

// NewGrader creates a Grader. A non-positive threshold selects DefaultPassThreshold.
func NewGrader(passThreshold float64) *Grader {
	if passThreshold <= 0 {
		passThreshold = DefaultPassThreshold
	}
	return &Grader{passThreshold: passThreshold}
}

// Grade scores the session. history is the user's prior results; readiness is
// computed over history plus this result. The result ID is left empty for the
// result store to assign.
func (g *Grader) Grade(session *model.ExamSession, submittedAt time.Time, history []model.ExamHistoryItem) model.ExamResult {
	total := len(session.Questions)
	correct := 0

	var order []string
	byTopic := make(map[string]*model.TopicScore)
	for _, q := range session.Questions {
		ts, ok := byTopic[q.Topic]
		if !ok {
			ts = &model.TopicScore{Topic: q.Topic}
			byTopic[q.Topic] = ts
			order = append(order, q.Topic)
		}
		ts.Total++
		if answer, ok := session.Answers[q.ID]; ok && answer == q.CorrectOptionID {
			ts.Correct++
			correct++
		}
	}

	accuracy := 0.0
	if total > 0 {
		accuracy = 100 * float64(correct) / float64(total)
	}

	breakdown := make([]model.TopicScore, 0, len(order))
	weak := make([]string, 0)
	for _, topic := range order {
		ts := *byTopic[topic]
		breakdown = append(breakdown, ts)
		if ts.Ratio() < weakRatio {
			weak = append(weak, ts.Topic)
		}
	}

	spent := (submittedAt.UnixMilli() - session.StartTime) / 1000
	if spent < 0 {
		spent = 0
	}

	result := model.ExamResult{
		SessionID:        session.ID,
		Date:             submittedAt,
		ExamType:         session.ExamType,
		Mode:             session.Mode,
		Score:            correct,
		TotalQuestions:   total,
		Accuracy:         accuracy,
		TimeSpentSeconds: spent,
		TopicBreakdown:   breakdown,
		WeakAreas:        weak,
		Recommendation:   g.recommend(accuracy, weak),
		AssignmentID:     session.Config.AssignmentID,
		SessionData:      session.Clone(),
	}

	withCurrent := make([]model.ExamHistoryItem, 0, len(history)+1)
	withCurrent = append(withCurrent, history...)
	withCurrent = append(withCurrent, result.HistoryItem())
	result.ReadinessContribution = ComputeReadiness(withCurrent)

	return result
}

func (g *Grader) recommend(accuracy float64, weak []string) string {
	if accuracy >= g.passThreshold {
		return fmt.Sprintf("Excellent work! You scored %.0f%%. Keep practicing to stay sharp.", accuracy)
	}
	if len(weak) == 0 {
		return fmt.Sprintf("You scored %.0f%%. Review your mistakes and try another session.", accuracy)
	}
	return fmt.Sprintf("You scored %.0f%%. Focus on reviewing: %s.", accuracy, strings.Join(weak, ", "))
}
