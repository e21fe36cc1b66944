package models

import "strings"

// ExemptPaper is the paper whose reference codes are always counted toward
// completion totals, whatever their final segment looks like.
const ExemptPaper = "1B"

// Question is one immutable row of a subject's question bank.
type Question struct {
	ID                 int64      `json:"id" db:"id"`
	HTML               string     `json:"html" db:"html"`
	Paper              string     `json:"paper" db:"paper"`
	ReferenceCode      string     `json:"reference_code" db:"reference_code"`
	SyllabusLink       string     `json:"syllabus_link" db:"syllabus_link"`
	MaximumMarks       int        `json:"maximum_marks" db:"maximum_marks"`
	Level              string     `json:"level" db:"level"`
	MarkschemeHTML     string     `json:"markscheme_html" db:"markscheme_html"`
	ExaminerReportHTML string     `json:"examiner_report_html,omitempty" db:"examiner_report_html"`
	Syllabus           [][]string `json:"syllabus" db:"-"`
}

// QuestionRef is the slice of a question needed for totals and history.
type QuestionRef struct {
	ID            int64  `json:"id" db:"id"`
	ReferenceCode string `json:"reference_code" db:"reference_code"`
	Paper         string `json:"paper" db:"paper"`
}

// ── Selection Filter ────────────────────────────────────

type FilterMode string

const (
	ModeRandom   FilterMode = "random"
	ModePaper    FilterMode = "paper"
	ModeSyllabus FilterMode = "syllabus"
)

// Filter narrows the candidate set of the selection engine. The zero value
// selects from the whole bank.
type Filter struct {
	Mode         FilterMode `json:"mode"`
	Paper        string     `json:"paper,omitempty"`
	SyllabusPath string     `json:"syllabus_path,omitempty"`
}

// RandomFilter selects from every question in the bank.
func RandomFilter() Filter {
	return Filter{Mode: ModeRandom}
}

// PaperFilter selects questions whose paper label equals paper.
func PaperFilter(paper string) Filter {
	return Filter{Mode: ModePaper, Paper: strings.TrimSpace(paper)}
}

// SyllabusFilter selects questions linked to the given syllabus path.
func SyllabusFilter(path string) Filter {
	return Filter{Mode: ModeSyllabus, SyllabusPath: strings.TrimSpace(path)}
}

// Normalize maps the zero mode to random and drops fields the mode ignores.
func (f Filter) Normalize() Filter {
	switch f.Mode {
	case ModePaper:
		return PaperFilter(f.Paper)
	case ModeSyllabus:
		return SyllabusFilter(f.SyllabusPath)
	default:
		return RandomFilter()
	}
}

func (f Filter) Equal(other Filter) bool {
	return f.Normalize() == other.Normalize()
}

// ── Responses ───────────────────────────────────────────

type SubjectInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type SelectionResponse struct {
	Question *Question `json:"question"`
	Filter   Filter    `json:"filter"`
	Message  string    `json:"message,omitempty"`
}

// ExhaustedMessage is shown when no unreviewed question matches the filter.
const ExhaustedMessage = "No more questions available!"
