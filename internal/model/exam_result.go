package model

import "time"

// TopicScore is the per-topic tally of a graded session.
type TopicScore struct {
	Topic   string `json:"topic"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
}

// Ratio returns Correct/Total, or 0 for an empty topic.
func (t TopicScore) Ratio() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Total)
}

// ExamResult is the immutable outcome of grading a submitted session.
// Score is the raw correct count; Accuracy is the percentage.
type ExamResult struct {
	ID                    string         `json:"id"`
	SessionID             string         `json:"session_id"`
	UserID                string         `json:"user_id"`
	Date                  time.Time      `json:"date"`
	ExamType              ExamType       `json:"exam_type"`
	Mode                  Mode           `json:"mode"`
	Score                 int            `json:"score"`
	TotalQuestions        int            `json:"total_questions"`
	Accuracy              float64        `json:"accuracy"`
	TimeSpentSeconds      int64          `json:"time_spent_seconds"`
	ReadinessContribution ReadinessScore `json:"readiness_contribution"`
	TopicBreakdown        []TopicScore   `json:"topic_breakdown"`
	WeakAreas             []string       `json:"weak_areas"`
	Recommendation        string         `json:"recommendation"`
	AssignmentID          *string        `json:"assignment_id,omitempty"`
	SessionData           *ExamSession   `json:"session_data,omitempty"`
}

// HistoryItem projects the result into the summary used by readiness scoring.
func (r ExamResult) HistoryItem() ExamHistoryItem {
	return ExamHistoryItem{
		ID:             r.ID,
		SessionID:      r.SessionID,
		Date:           r.Date,
		ExamType:       r.ExamType,
		Mode:           r.Mode,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Accuracy:       r.Accuracy,
	}
}

// ExamHistoryItem is a lightweight projection of a past ExamResult.
type ExamHistoryItem struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Date           time.Time `json:"date"`
	ExamType       ExamType  `json:"exam_type"`
	Mode           Mode      `json:"mode"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Accuracy       float64   `json:"accuracy"`
}
