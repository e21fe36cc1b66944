package models

import "time"

// Outcome is the self-assessed result a user submits for a question.
type Outcome string

const (
	OutcomeCorrect          Outcome = "correct"
	OutcomePartiallyCorrect Outcome = "partially_correct"
	OutcomeIncorrect        Outcome = "incorrect"
)

var ValidOutcomes = map[Outcome]bool{
	OutcomeCorrect:          true,
	OutcomePartiallyCorrect: true,
	OutcomeIncorrect:        true,
}

func (o Outcome) Valid() bool {
	return ValidOutcomes[o]
}

// ProgressRecord is one row of user_progress, keyed by (subject, question, user).
type ProgressRecord struct {
	Subject               string    `json:"subject" db:"subject"`
	QuestionID            int64     `json:"question_id" db:"question_id"`
	UserID                int64     `json:"user_id" db:"user_id"`
	CorrectCount          int       `json:"correct_count" db:"correct_count"`
	PartiallyCorrectCount int       `json:"partially_correct_count" db:"partially_correct_count"`
	IncorrectCount        int       `json:"incorrect_count" db:"incorrect_count"`
	Reviewed              bool      `json:"reviewed" db:"reviewed"`
	LackingContext        bool      `json:"lacking_context" db:"lacking_context"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// ProgressCounts is the completion numerator and denominator for a subject.
type ProgressCounts struct {
	Reviewed int `json:"reviewed"`
	Total    int `json:"total"`
}

// Ratio returns Reviewed/Total, or 0 when the bank has no counted questions.
func (c ProgressCounts) Ratio() float64 {
	if c.Total <= 0 {
		return 0
	}
	return float64(c.Reviewed) / float64(c.Total)
}

type ProgressResponse struct {
	Reviewed int     `json:"reviewed"`
	Total    int     `json:"total"`
	Ratio    float64 `json:"ratio"`
}

type OutcomeTotals struct {
	Correct          int `json:"correct"`
	PartiallyCorrect int `json:"partially_correct"`
	Incorrect        int `json:"incorrect"`
}

// HistoryEntry is a reviewed record joined with its question's reference data.
type HistoryEntry struct {
	QuestionID            int64     `json:"question_id"`
	ReferenceCode         string    `json:"reference_code"`
	Paper                 string    `json:"paper"`
	CorrectCount          int       `json:"correct_count"`
	PartiallyCorrectCount int       `json:"partially_correct_count"`
	IncorrectCount        int       `json:"incorrect_count"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Limit   int            `json:"limit"`
}

type OutcomeRequest struct {
	Outcome Outcome `json:"outcome"`
}
