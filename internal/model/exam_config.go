package model

import (
	"encoding/json"
	"errors"
	"strings"
)

// ExamType enumerates the supported examination bodies.
type ExamType string

const (
	ExamTypeJAMB     ExamType = "JAMB"
	ExamTypeWAEC     ExamType = "WAEC"
	ExamTypePostUTME ExamType = "POST_UTME"
)

// Valid reports whether t is a known exam type.
func (t ExamType) Valid() bool {
	switch t {
	case ExamTypeJAMB, ExamTypeWAEC, ExamTypePostUTME:
		return true
	}
	return false
}

// Mode enumerates how a session is timed.
type Mode string

const (
	ModePractice Mode = "PRACTICE"
	ModeTimed    Mode = "TIMED"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePractice || m == ModeTimed
}

// DefaultSubjectsToken is the wire value that asks for the exam type's default subject list.
const DefaultSubjectsToken = "default"

var ErrMixedSubjectSelection = errors.New("subjects: \"default\" cannot be combined with explicit subjects")

// SubjectSelection is either "use the default list for the exam type" or an
// explicit ordered set of subjects. The zero value means UseDefault.
type SubjectSelection struct {
	explicit []string
}

// UseDefaultSubjects returns a selection that resolves to the catalog defaults.
func UseDefaultSubjects() SubjectSelection {
	return SubjectSelection{}
}

// ExplicitSubjects returns a selection of the given subjects in order.
// Blank entries and repeats are dropped; an empty result behaves as UseDefault.
func ExplicitSubjects(subjects ...string) SubjectSelection {
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return SubjectSelection{}
	}
	return SubjectSelection{explicit: out}
}

// IsDefault reports whether the selection defers to the exam type's defaults.
func (s SubjectSelection) IsDefault() bool {
	return len(s.explicit) == 0
}

// Subjects returns a copy of the explicit subjects (nil when IsDefault).
func (s SubjectSelection) Subjects() []string {
	if s.IsDefault() {
		return nil
	}
	return append([]string(nil), s.explicit...)
}

// MarshalJSON encodes UseDefault as "default" and explicit lists as arrays.
func (s SubjectSelection) MarshalJSON() ([]byte, error) {
	if s.IsDefault() {
		return json.Marshal(DefaultSubjectsToken)
	}
	return json.Marshal(s.explicit)
}

// UnmarshalJSON accepts "default", null, [], ["default"] or a list of subjects.
func (s *SubjectSelection) UnmarshalJSON(data []byte) error {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		if token != "" && !strings.EqualFold(token, DefaultSubjectsToken) {
			*s = ExplicitSubjects(token)
			return nil
		}
		*s = UseDefaultSubjects()
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	hasDefault := false
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), DefaultSubjectsToken) {
			hasDefault = true
		}
	}
	if hasDefault {
		if len(list) > 1 {
			return ErrMixedSubjectSelection
		}
		*s = UseDefaultSubjects()
		return nil
	}

	*s = ExplicitSubjects(list...)
	return nil
}

// ExamConfig is the immutable request that a session is built from.
type ExamConfig struct {
	ExamType      ExamType         `json:"exam_type"`
	Mode          Mode             `json:"mode"`
	Subjects      SubjectSelection `json:"subjects"`
	Topics        []string         `json:"topics,omitempty"`
	AssignmentID  *string          `json:"assignment_id,omitempty"`
	BypassPayment bool             `json:"bypass_payment,omitempty"`
}

// StartExamRequest is the payload for starting a new exam session.
type StartExamRequest struct {
	ExamType      string           `json:"exam_type" binding:"required,examtype"`
	Mode          string           `json:"mode" binding:"required,exammode"`
	Subjects      SubjectSelection `json:"subjects"`
	Topics        []string         `json:"topics" binding:"omitempty,max=20,dive,max=100"`
	AssignmentID  *string          `json:"assignment_id" binding:"omitempty,max=64"`
	BypassPayment bool             `json:"bypass_payment"`
}

// Config converts the request into an ExamConfig.
func (r StartExamRequest) Config() ExamConfig {
	return ExamConfig{
		ExamType:      ExamType(strings.ToUpper(r.ExamType)),
		Mode:          Mode(strings.ToUpper(r.Mode)),
		Subjects:      r.Subjects,
		Topics:        append([]string(nil), r.Topics...),
		AssignmentID:  r.AssignmentID,
		BypassPayment: r.BypassPayment,
	}
}
