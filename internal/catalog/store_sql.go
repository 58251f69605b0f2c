package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/prepworks/prepworks-engine/internal/fault"
)

// SQLStore persists the question bank, tests and blueprints. Nested lists
// (options, sub-sections) live in JSON columns, one row per aggregate.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuestion(ctx context.Context, q Question) error {
	if q.ID == "" || q.SubjectID == "" || q.Type == "" {
		return fault.Validation("question id, subject_id and type are required")
	}
	oj, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	aj, err := json.Marshal(q.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions
		(id,subject_id,type,pool,difficulty,topic,prompt_html,options_json,answers_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, pool=EXCLUDED.pool,
			difficulty=EXCLUDED.difficulty, topic=EXCLUDED.topic,
			prompt_html=EXCLUDED.prompt_html, options_json=EXCLUDED.options_json,
			answers_json=EXCLUDED.answers_json`,
		q.ID, q.SubjectID, q.Type, q.Pool, string(q.Difficulty), q.Topic, q.PromptHTML, string(oj), string(aj))
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,subject_id,type,pool,difficulty,topic,prompt_html,options_json,answers_json
		FROM questions WHERE id=$1`, id)
	return scanQuestion(row)
}

func scanQuestion(row *sql.Row) (Question, error) {
	var q Question
	var diff, oj, aj string
	if err := row.Scan(&q.ID, &q.SubjectID, &q.Type, &q.Pool, &diff, &q.Topic, &q.PromptHTML, &oj, &aj); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, fault.NotFound("question not found")
		}
		return Question{}, err
	}
	q.Difficulty = Difficulty(diff)
	if err := json.Unmarshal([]byte(oj), &q.Options); err != nil {
		return Question{}, err
	}
	if err := json.Unmarshal([]byte(aj), &q.Answers); err != nil {
		return Question{}, err
	}
	return q, nil
}

// QuestionsByIDs loads the given questions; IDs with no record are absent
// from the returned map.
func (s *SQLStore) QuestionsByIDs(ctx context.Context, ids []string) (map[string]Question, error) {
	out := make(map[string]Question, len(ids))
	for _, id := range ids {
		q, err := s.GetQuestion(ctx, id)
		if err != nil {
			if fault.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[id] = q
	}
	return out, nil
}

// Pool returns the full-length entries for a subject minus the excluded IDs.
func (s *SQLStore) Pool(ctx context.Context, subjectID string, exclude []string) ([]PoolEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,difficulty FROM questions WHERE subject_id=$1 AND pool=$2`, subjectID, FullLengthPool)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []PoolEntry
	for rows.Next() {
		var e PoolEntry
		var diff string
		if err := rows.Scan(&e.ID, &diff); err != nil {
			return nil, err
		}
		if skip[e.ID] {
			continue
		}
		e.Difficulty = Difficulty(diff)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PracticeQuestionIDs lists the self-practice pool for a subject, optionally
// narrowed by topics and difficulty tiers.
func (s *SQLStore) PracticeQuestionIDs(ctx context.Context, subjectID string, topics []string, difficulties []string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,topic,difficulty FROM questions WHERE subject_id=$1 AND pool=$2`, subjectID, SelfPracticePool)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wantTopic := toSet(topics)
	wantDiff := toSet(difficulties)
	var out []string
	for rows.Next() {
		var id, topic, diff string
		if err := rows.Scan(&id, &topic, &diff); err != nil {
			return nil, err
		}
		if len(wantTopic) > 0 && !wantTopic[topic] {
			continue
		}
		if len(wantDiff) > 0 && !wantDiff[diff] {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		if v != "" {
			m[v] = true
		}
	}
	return m
}

func (s *SQLStore) countFullLength(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE subject_id=$1 AND pool=$2`, subjectID, FullLengthPool).Scan(&n)
	return n, err
}

// CreateTest stores a test with its per-subject blueprints. For dynamic
// tests every subject's bank must be able to host one full attempt; the
// check runs before any row is written.
func (s *SQLStore) CreateTest(ctx context.Context, t Test, bps []Blueprint) error {
	if t.ID == "" || t.Name == "" {
		return fault.Validation("test id and name are required")
	}
	if t.Format != FormatLinear && t.Format != FormatDynamic {
		return fault.Validation("unsupported test format: %s", t.Format)
	}
	for _, bp := range bps {
		seen := map[string]bool{}
		for _, ss := range bp.SubSections {
			if ss.ID == "" {
				return fault.Validation("sub-section id required in subject %s", bp.SubjectName)
			}
			if seen[ss.ID] {
				return fault.Validation("duplicate sub-section id %s in subject %s", ss.ID, bp.SubjectName)
			}
			seen[ss.ID] = true
			if ss.QuestionCount <= 0 {
				return fault.Validation("sub-section %s needs a positive question count", ss.ID)
			}
		}
	}

	if t.Format == FormatDynamic {
		for _, bp := range bps {
			required := bp.QuestionsRequired()
			available, err := s.countFullLength(ctx, bp.SubjectID)
			if err != nil {
				return err
			}
			if available < required {
				return fault.Capacity(
					"insufficient questions for dynamic test: required %d, available %d for subject %s",
					required, available, bp.SubjectName)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO tests (id,course_id,name,format,created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.CourseID, t.Name, string(t.Format), time.Now().Unix())
	if err != nil {
		return err
	}
	for _, bp := range bps {
		sj, err := json.Marshal(bp.SubSections)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO blueprints
			(test_id,subject_id,subject_name,ord,correct_marks,incorrect_marks,composite,sub_sections_json)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			t.ID, bp.SubjectID, bp.SubjectName, bp.Order, bp.CorrectMarks, bp.IncorrectMarks, bp.Composite, string(sj))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,course_id,name,format,created_at FROM tests WHERE id=$1`, id)
	var t Test
	var format string
	if err := row.Scan(&t.ID, &t.CourseID, &t.Name, &format, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, fault.NotFound("test not found")
		}
		return Test{}, err
	}
	t.Format = Format(format)
	return t, nil
}

// BlueprintsForTest returns the test's blueprints in subject order.
func (s *SQLStore) BlueprintsForTest(ctx context.Context, testID string) ([]Blueprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT test_id,subject_id,subject_name,ord,correct_marks,incorrect_marks,composite,sub_sections_json
		FROM blueprints WHERE test_id=$1 ORDER BY ord`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Blueprint
	for rows.Next() {
		var bp Blueprint
		var sj string
		if err := rows.Scan(&bp.TestID, &bp.SubjectID, &bp.SubjectName, &bp.Order,
			&bp.CorrectMarks, &bp.IncorrectMarks, &bp.Composite, &sj); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sj), &bp.SubSections); err != nil {
			return nil, err
		}
		out = append(out, bp)
	}
	return out, rows.Err()
}

// SetLinearQuestions replaces a linear sub-section's curated question list.
// The list must match the sub-section's question count exactly and every ID
// must exist in the bank.
func (s *SQLStore) SetLinearQuestions(ctx context.Context, testID, subjectID, sectionID string, questionIDs []string) error {
	t, err := s.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if t.Format != FormatLinear {
		return fault.InvalidState("question sets can only be edited on linear tests")
	}
	known, err := s.QuestionsByIDs(ctx, questionIDs)
	if err != nil {
		return err
	}
	if len(known) != len(questionIDs) {
		return fault.Validation("one or more questions do not exist")
	}

	bps, err := s.BlueprintsForTest(ctx, testID)
	if err != nil {
		return err
	}
	for _, bp := range bps {
		if bp.SubjectID != subjectID {
			continue
		}
		for i, ss := range bp.SubSections {
			if ss.ID != sectionID {
				continue
			}
			if len(questionIDs) != ss.QuestionCount {
				return fault.Validation("expected exactly %d questions, got %d", ss.QuestionCount, len(questionIDs))
			}
			bp.SubSections[i].Questions = questionIDs
			sj, err := json.Marshal(bp.SubSections)
			if err != nil {
				return err
			}
			_, err = s.db.ExecContext(ctx,
				`UPDATE blueprints SET sub_sections_json=$1 WHERE test_id=$2 AND subject_id=$3`,
				string(sj), testID, subjectID)
			return err
		}
		return fault.NotFound("sub-section not found")
	}
	return fault.NotFound("subject not found on test")
}

func (s *SQLStore) PutSubject(ctx context.Context, sub Subject) error {
	if sub.ID == "" || sub.Name == "" {
		return fault.Validation("subject id and name are required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO subjects
		(id,course_id,name,correct_marks,incorrect_marks,composite)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, name=EXCLUDED.name,
			correct_marks=EXCLUDED.correct_marks, incorrect_marks=EXCLUDED.incorrect_marks,
			composite=EXCLUDED.composite`,
		sub.ID, sub.CourseID, sub.Name, sub.CorrectMarks, sub.IncorrectMarks, sub.Composite)
	return err
}

func (s *SQLStore) GetSubject(ctx context.Context, id string) (Subject, error) {
	var sub Subject
	err := s.db.QueryRowContext(ctx,
		`SELECT id,course_id,name,correct_marks,incorrect_marks,composite FROM subjects WHERE id=$1`, id).
		Scan(&sub.ID, &sub.CourseID, &sub.Name, &sub.CorrectMarks, &sub.IncorrectMarks, &sub.Composite)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, fault.NotFound("subject not found")
	}
	if err != nil {
		return Subject{}, err
	}
	return sub, nil
}

// CombinedScores loads every composite-score row, grouped by subject name.
func (s *SQLStore) CombinedScores(ctx context.Context) ([]CombinedScoreRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_name,section1_correct,section2_correct,total_score FROM combined_scores`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CombinedScoreRow
	for rows.Next() {
		var r CombinedScoreRow
		if err := rows.Scan(&r.SubjectName, &r.Section1Correct, &r.Section2Correct, &r.TotalScore); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutCombinedScore upserts one composite lookup cell.
func (s *SQLStore) PutCombinedScore(ctx context.Context, r CombinedScoreRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO combined_scores
		(subject_name,section1_correct,section2_correct,total_score)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (subject_name,section1_correct,section2_correct)
		DO UPDATE SET total_score=EXCLUDED.total_score`,
		r.SubjectName, r.Section1Correct, r.Section2Correct, r.TotalScore)
	return err
}
