package model

// Difficulty grades how hard a question is.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// Question is a single multiple-choice question as stored in the content pool.
type Question struct {
	ID              string     `json:"id"`
	ExamType        ExamType   `json:"exam_type"`
	Subject         string     `json:"subject"`
	Topic           string     `json:"topic"`
	Text            string     `json:"text"`
	Options         []Option   `json:"options"`
	CorrectOptionID string     `json:"correct_option_id"`
	Explanation     string     `json:"explanation,omitempty"`
	Difficulty      Difficulty `json:"difficulty,omitempty"`
}

// HasOption reports whether optionID is one of the question's options.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// QuestionForStudent is a question without the answer key, sent to clients.
type QuestionForStudent struct {
	ID         string     `json:"id"`
	Subject    string     `json:"subject"`
	Topic      string     `json:"topic"`
	Text       string     `json:"text"`
	Options    []Option   `json:"options"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

// ForStudent strips the answer key and explanation.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:         q.ID,
		Subject:    q.Subject,
		Topic:      q.Topic,
		Text:       q.Text,
		Options:    append([]Option(nil), q.Options...),
		Difficulty: q.Difficulty,
	}
}

// SeedQuestion is one record of a question dump consumed by the seeder.
type SeedQuestion struct {
	ExamType        string     `json:"exam_type" validate:"required,examtype"`
	Subject         string     `json:"subject" validate:"required,max=100"`
	Topic           string     `json:"topic" validate:"max=100"`
	Text            string     `json:"text" validate:"required,max=4000"`
	Options         []Option   `json:"options" validate:"len=4,dive"`
	CorrectOptionID string     `json:"correct_option_id" validate:"required"`
	Explanation     string     `json:"explanation"`
	Difficulty      Difficulty `json:"difficulty" validate:"omitempty,oneof=EASY MEDIUM HARD"`
}
