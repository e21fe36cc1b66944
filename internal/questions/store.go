package questions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ibpractice/backend/internal/models"
	"github.com/ibpractice/backend/internal/syllabus"
)

// Store reads one subject's question bank.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

const questionColumns = `id,
	COALESCE(html, '') AS html,
	COALESCE(paper, '') AS paper,
	COALESCE(reference_code, '') AS reference_code,
	COALESCE(syllabus_link, '') AS syllabus_link,
	COALESCE(maximum_marks, 0) AS maximum_marks,
	COALESCE(level, '') AS level,
	COALESCE(markscheme_html, '') AS markscheme_html,
	COALESCE(examiner_report_html, '') AS examiner_report_html`

// ── Schema ──────────────────────────────────────────────

const bankSchema = `
CREATE TABLE IF NOT EXISTS questions (
	id                   INTEGER PRIMARY KEY,
	html                 TEXT,
	paper                TEXT,
	reference_code       TEXT,
	syllabus_link        TEXT,
	maximum_marks        INTEGER,
	level                TEXT,
	markscheme_html      TEXT,
	examiner_report_html TEXT
)`

// EnsureSchema creates the questions table of a bank if it is missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, bankSchema); err != nil {
		return fmt.Errorf("create questions table: %w", err)
	}
	return nil
}

// InsertQuestions writes questions into a bank in one transaction. Rows
// with an existing id are replaced.
func InsertQuestions(ctx context.Context, db *sqlx.DB, qs []models.Question) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range qs {
		_, err := tx.NamedExecContext(ctx,
			`INSERT OR REPLACE INTO questions
			 (id, html, paper, reference_code, syllabus_link, maximum_marks, level, markscheme_html, examiner_report_html)
			 VALUES (:id, :html, :paper, :reference_code, :syllabus_link, :maximum_marks, :level, :markscheme_html, :examiner_report_html)`,
			q)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", q.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ── Reads ───────────────────────────────────────────────

func (s *Store) Get(ctx context.Context, id int64) (*models.Question, error) {
	var q models.Question
	err := s.db.GetContext(ctx, &q, s.db.Rebind(`SELECT `+questionColumns+` FROM questions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	q.Syllabus = syllabus.ParseLink(q.SyllabusLink)
	return &q, nil
}

// Candidates returns every question matching filter, reviewed or not.
// Syllabus filters are narrowed in SQL on the first level label and then
// matched exactly against the parsed paths.
func (s *Store) Candidates(ctx context.Context, filter models.Filter) ([]models.Question, error) {
	filter = filter.Normalize()

	query := `SELECT ` + questionColumns + ` FROM questions`
	var args []interface{}

	switch filter.Mode {
	case models.ModePaper:
		query += ` WHERE paper = ?`
		args = append(args, filter.Paper)
	case models.ModeSyllabus:
		levels := syllabus.ParsePath(filter.SyllabusPath)
		if len(levels) == 0 {
			return nil, nil
		}
		query += ` WHERE syllabus_link LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(levels[0])+"%")
	}
	query += ` ORDER BY id`

	var rows []models.Question
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	out := rows[:0]
	for _, q := range rows {
		q.Syllabus = syllabus.ParseLink(q.SyllabusLink)
		if filter.Mode == models.ModeSyllabus && !syllabus.Matches(q.Syllabus, filter.SyllabusPath) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// Refs returns the id, reference code and paper of every question.
func (s *Store) Refs(ctx context.Context) ([]models.QuestionRef, error) {
	var refs []models.QuestionRef
	err := s.db.SelectContext(ctx, &refs,
		`SELECT id, COALESCE(reference_code, '') AS reference_code, COALESCE(paper, '') AS paper
		 FROM questions`)
	if err != nil {
		return nil, fmt.Errorf("select refs: %w", err)
	}
	return refs, nil
}

// RefsByID resolves the given ids. Ids missing from the bank are absent
// from the result.
func (s *Store) RefsByID(ctx context.Context, ids []int64) (map[int64]models.QuestionRef, error) {
	out := make(map[int64]models.QuestionRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(
		`SELECT id, COALESCE(reference_code, '') AS reference_code, COALESCE(paper, '') AS paper
		 FROM questions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build refs query: %w", err)
	}

	var refs []models.QuestionRef
	if err := s.db.SelectContext(ctx, &refs, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select refs by id: %w", err)
	}
	for _, r := range refs {
		out[r.ID] = r
	}
	return out, nil
}

// SyllabusLinks returns the distinct non-empty raw links, trimmed and sorted.
func (s *Store) SyllabusLinks(ctx context.Context) ([]string, error) {
	var raw []string
	err := s.db.SelectContext(ctx, &raw,
		`SELECT DISTINCT syllabus_link FROM questions WHERE syllabus_link IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("select syllabus links: %w", err)
	}

	seen := make(map[string]bool, len(raw))
	links := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		links = append(links, l)
	}
	sort.Strings(links)
	return links, nil
}

func (s *Store) Papers(ctx context.Context) ([]string, error) {
	var papers []string
	err := s.db.SelectContext(ctx, &papers,
		`SELECT DISTINCT paper FROM questions WHERE paper IS NOT NULL AND paper <> '' ORDER BY paper`)
	if err != nil {
		return nil, fmt.Errorf("select papers: %w", err)
	}
	return papers, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
