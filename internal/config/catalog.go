package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/stemsi/exstem-prep/internal/model"
)

const (
	subjectsPrefix      = "subjects."
	subjectCountsPrefix = "subject_counts."
)

// Catalog is the exam catalog: default subjects per exam type and how many
// questions each subject contributes to a session.
type Catalog struct {
	DefaultSubjects      map[model.ExamType][]string
	SubjectCounts        map[string]int // keyed by lower-cased subject
	DefaultCount         int
	TimedDurationMinutes int
	PassThreshold        float64
}

// LoadCatalog reads an optional YAML catalog file on top of built-in defaults.
// An empty path yields the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("subjects.jamb", []string{"Use of English", "Mathematics", "Physics", "Chemistry"})
	v.SetDefault("subjects.waec", []string{"English Language", "Mathematics", "Physics", "Chemistry", "Biology"})
	v.SetDefault("subjects.post_utme", []string{"Use of English", "Mathematics", "General Paper"})
	v.SetDefault("subject_counts.use of english", 60)
	v.SetDefault("subject_counts.english language", 50)
	v.SetDefault("subject_counts.mathematics", 40)
	v.SetDefault("default_count", 40)
	v.SetDefault("timed_duration_minutes", 45)
	v.SetDefault("pass_threshold", 70)

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
	}

	c := &Catalog{
		DefaultSubjects:      make(map[model.ExamType][]string),
		SubjectCounts:        make(map[string]int),
		DefaultCount:         v.GetInt("default_count"),
		TimedDurationMinutes: v.GetInt("timed_duration_minutes"),
		PassThreshold:        v.GetFloat64("pass_threshold"),
	}

	for _, key := range v.AllKeys() {
		switch {
		case strings.HasPrefix(key, subjectsPrefix):
			examType := model.ExamType(strings.ToUpper(strings.TrimPrefix(key, subjectsPrefix)))
			c.DefaultSubjects[examType] = v.GetStringSlice(key)
		case strings.HasPrefix(key, subjectCountsPrefix):
			c.SubjectCounts[strings.TrimPrefix(key, subjectCountsPrefix)] = v.GetInt(key)
		}
	}

	if c.DefaultCount <= 0 {
		return nil, fmt.Errorf("catalog: default_count must be positive, got %d", c.DefaultCount)
	}
	if c.TimedDurationMinutes <= 0 {
		return nil, fmt.Errorf("catalog: timed_duration_minutes must be positive, got %d", c.TimedDurationMinutes)
	}

	return c, nil
}

// DefaultSubjectsFor returns a copy of the default subject list of an exam type.
func (c *Catalog) DefaultSubjectsFor(t model.ExamType) []string {
	return append([]string(nil), c.DefaultSubjects[t]...)
}

// CountFor returns the standard question count of a subject, or DefaultCount.
func (c *Catalog) CountFor(subject string) int {
	if n, ok := c.SubjectCounts[strings.ToLower(strings.TrimSpace(subject))]; ok && n > 0 {
		return n
	}
	return c.DefaultCount
}

// DurationFor returns the session length in minutes; 0 means untimed.
func (c *Catalog) DurationFor(mode model.Mode) int {
	if mode == model.ModeTimed {
		return c.TimedDurationMinutes
	}
	return 0
}
