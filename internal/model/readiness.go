package model

// ReadinessLabel is the qualitative tier of a readiness total.
type ReadinessLabel string

const (
	ReadinessExamReady   ReadinessLabel = "Exam Ready"
	ReadinessAlmostReady ReadinessLabel = "Almost Ready"
	ReadinessFair        ReadinessLabel = "Fair"
	ReadinessNotReady    ReadinessLabel = "Not Ready"
)

// ReadinessBreakdown holds the four components, each in [0,100].
type ReadinessBreakdown struct {
	Accuracy    float64 `json:"accuracy"`
	Mastery     float64 `json:"mastery"`
	Speed       float64 `json:"speed"`
	Consistency float64 `json:"consistency"`
}

// ReadinessScore is a pure projection of a user's history; it is never stored as source of truth.
type ReadinessScore struct {
	Total     int                `json:"total"`
	Label     ReadinessLabel     `json:"label"`
	Breakdown ReadinessBreakdown `json:"breakdown"`
}

// Dashboard is the student landing view.
type Dashboard struct {
	Readiness     ReadinessScore    `json:"readiness"`
	TotalAttempts int               `json:"total_attempts"`
	Recent        []ExamHistoryItem `json:"recent"`
	HasActive     bool              `json:"has_active_session"`
}
