package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/prepworks/prepworks-engine/internal/fault"
)

// SQLStore backs the engine with sqlite or postgres. Nested ledgers live in
// JSON columns; concurrency control is an optimistic version column bumped
// on every write, so a lost race surfaces as zero rows updated.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) CreateSubmissions(ctx context.Context, subs []Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, sub := range subs {
		sj, err := json.Marshal(sub.Selected)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO submissions
			(id,test_id,student_id,status,assigned_at,expires_at,completed_at,selected_json,version)
			VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,1)`,
			sub.ID, sub.TestID, sub.StudentID, string(sub.Status),
			sub.AssignedAt.Unix(), sub.ExpiresAt.Unix(), string(sj))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,test_id,student_id,status,assigned_at,expires_at,completed_at,selected_json,version
		FROM submissions WHERE id=$1`, id)
	return scanSubmission(row)
}

func scanSubmission(row *sql.Row) (Submission, error) {
	var sub Submission
	var status, sj string
	var assigned, expires int64
	var completed sql.NullInt64
	if err := row.Scan(&sub.ID, &sub.TestID, &sub.StudentID, &status, &assigned, &expires, &completed, &sj, &sub.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, fault.NotFound("submission not found")
		}
		return Submission{}, err
	}
	sub.Status = Status(status)
	sub.AssignedAt = time.Unix(assigned, 0).UTC()
	sub.ExpiresAt = time.Unix(expires, 0).UTC()
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		sub.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(sj), &sub.Selected); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (s *SQLStore) GetResult(ctx context.Context, submissionID string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT submission_id,correct_count,incorrect_count,time_taken_sec,sections_json,version
		FROM results WHERE submission_id=$1`, submissionID)
	var r Result
	var sj string
	if err := row.Scan(&r.SubmissionID, &r.CorrectCount, &r.IncorrectCount, &r.TimeTakenSec, &sj, &r.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(sj), &r.Sections); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) SaveAttempt(ctx context.Context, sub Submission, res *Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := updateSubmissionTx(ctx, tx, sub); err != nil {
		return err
	}
	if res != nil {
		if err := upsertResultTx(ctx, tx, res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) UpdateSubmission(ctx context.Context, sub Submission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := updateSubmissionTx(ctx, tx, sub); err != nil {
		return err
	}
	return tx.Commit()
}

func updateSubmissionTx(ctx context.Context, tx *sql.Tx, sub Submission) error {
	sj, err := json.Marshal(sub.Selected)
	if err != nil {
		return err
	}
	var completed any
	if sub.CompletedAt != nil {
		completed = sub.CompletedAt.Unix()
	}
	r, err := tx.ExecContext(ctx, `UPDATE submissions
		SET status=$1, expires_at=$2, completed_at=$3, selected_json=$4, version=version+1
		WHERE id=$5 AND version=$6`,
		string(sub.Status), sub.ExpiresAt.Unix(), completed, string(sj), sub.ID, sub.Version)
	if err != nil {
		return err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.Conflict("stale submission write for %s", sub.ID)
	}
	return nil
}

func upsertResultTx(ctx context.Context, tx *sql.Tx, res *Result) error {
	sj, err := json.Marshal(res.Sections)
	if err != nil {
		return err
	}
	if res.Version == 0 {
		_, err := tx.ExecContext(ctx, `INSERT INTO results
			(submission_id,correct_count,incorrect_count,time_taken_sec,sections_json,version)
			VALUES ($1,$2,$3,$4,$5,1)`,
			res.SubmissionID, res.CorrectCount, res.IncorrectCount, res.TimeTakenSec, string(sj))
		if err != nil {
			// Unique violation here means another writer created the ledger first.
			return fault.Conflict("result created concurrently for submission %s", res.SubmissionID)
		}
		return nil
	}
	r, err := tx.ExecContext(ctx, `UPDATE results
		SET correct_count=$1, incorrect_count=$2, time_taken_sec=$3, sections_json=$4, version=version+1
		WHERE submission_id=$5 AND version=$6`,
		res.CorrectCount, res.IncorrectCount, res.TimeTakenSec, string(sj), res.SubmissionID, res.Version)
	if err != nil {
		return err
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.Conflict("stale result write for submission %s", res.SubmissionID)
	}
	return nil
}

func (s *SQLStore) DeleteResult(ctx context.Context, submissionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE submission_id=$1`, submissionID)
	return err
}

func (s *SQLStore) PersistSelection(ctx context.Context, submissionID, subjectID, sectionKey string, ids []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var sj, studentID string
	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT selected_json,student_id,version FROM submissions WHERE id=$1`, submissionID).
		Scan(&sj, &studentID, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("submission not found")
	}
	if err != nil {
		return nil, err
	}
	selected := map[string][]string{}
	if err := json.Unmarshal([]byte(sj), &selected); err != nil {
		return nil, err
	}
	if selected == nil { // column holds "null" until the first selection
		selected = map[string][]string{}
	}
	if existing, ok := selected[sectionKey]; ok && len(existing) > 0 {
		return existing, nil
	}
	selected[sectionKey] = ids
	buf, err := json.Marshal(selected)
	if err != nil {
		return nil, err
	}
	r, err := tx.ExecContext(ctx,
		`UPDATE submissions SET selected_json=$1, version=version+1 WHERE id=$2 AND version=$3`,
		string(buf), submissionID, version)
	if err != nil {
		return nil, err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		// Lost the race: the winner's selection is authoritative.
		tx.Rollback()
		sub, err := s.GetSubmission(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		if existing, ok := sub.Selected[sectionKey]; ok && len(existing) > 0 {
			return existing, nil
		}
		return nil, fault.Conflict("concurrent selection for %s/%s", submissionID, sectionKey)
	}

	if err := appendServedTx(ctx, tx, studentID, subjectID, ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func appendServedTx(ctx context.Context, tx *sql.Tx, studentID, subjectID string, ids []string) error {
	var qj string
	err := tx.QueryRowContext(ctx,
		`SELECT question_ids_json FROM served_questions WHERE student_id=$1 AND subject_id=$2`,
		studentID, subjectID).Scan(&qj)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		buf, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO served_questions (student_id,subject_id,question_ids_json) VALUES ($1,$2,$3)`,
			studentID, subjectID, string(buf))
		return err
	case err != nil:
		return err
	}
	var existing []string
	if err := json.Unmarshal([]byte(qj), &existing); err != nil {
		return err
	}
	buf, err := json.Marshal(append(existing, ids...))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE served_questions SET question_ids_json=$1 WHERE student_id=$2 AND subject_id=$3`,
		string(buf), studentID, subjectID)
	return err
}

func (s *SQLStore) ServedQuestions(ctx context.Context, studentID, subjectID string) ([]string, error) {
	var qj string
	err := s.db.QueryRowContext(ctx,
		`SELECT question_ids_json FROM served_questions WHERE student_id=$1 AND subject_id=$2`,
		studentID, subjectID).Scan(&qj)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(qj), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	r, err := s.db.ExecContext(ctx, `UPDATE submissions
		SET status=$1, version=version+1
		WHERE status IN ($2,$3) AND expires_at < $4`,
		string(StatusExpired), string(StatusNotStarted), string(StatusInProgress), now.Unix())
	if err != nil {
		return 0, err
	}
	return r.RowsAffected()
}

func (s *SQLStore) CreatePractice(ctx context.Context, p Practice) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO practices (id,student_id,subject_id,created_at) VALUES ($1,$2,$3,$4)`,
		p.ID, p.StudentID, p.SubjectID, p.CreatedAt.Unix())
	return err
}

func (s *SQLStore) GetPractice(ctx context.Context, id string) (Practice, error) {
	var p Practice
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,student_id,subject_id,created_at FROM practices WHERE id=$1`, id).
		Scan(&p.ID, &p.StudentID, &p.SubjectID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Practice{}, fault.NotFound("practice session not found")
	}
	if err != nil {
		return Practice{}, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	return p, nil
}

func (s *SQLStore) GetPracticeResult(ctx context.Context, practiceID string) (*PracticeResult, error) {
	var pr PracticeResult
	var aj string
	err := s.db.QueryRowContext(ctx,
		`SELECT practice_id,correct_count,incorrect_count,time_taken_sec,answers_json,version
		 FROM practice_results WHERE practice_id=$1`, practiceID).
		Scan(&pr.PracticeID, &pr.CorrectCount, &pr.IncorrectCount, &pr.TimeTakenSec, &aj, &pr.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aj), &pr.Answers); err != nil {
		return nil, err
	}
	return &pr, nil
}

func (s *SQLStore) SavePracticeResult(ctx context.Context, pr *PracticeResult) error {
	aj, err := json.Marshal(pr.Answers)
	if err != nil {
		return err
	}
	if pr.Version == 0 {
		_, err := s.db.ExecContext(ctx, `INSERT INTO practice_results
			(practice_id,correct_count,incorrect_count,time_taken_sec,answers_json,version)
			VALUES ($1,$2,$3,$4,$5,1)`,
			pr.PracticeID, pr.CorrectCount, pr.IncorrectCount, pr.TimeTakenSec, string(aj))
		if err != nil {
			return fault.Conflict("practice result created concurrently")
		}
		return nil
	}
	r, err := s.db.ExecContext(ctx, `UPDATE practice_results
		SET correct_count=$1, incorrect_count=$2, time_taken_sec=$3, answers_json=$4, version=version+1
		WHERE practice_id=$5 AND version=$6`,
		pr.CorrectCount, pr.IncorrectCount, pr.TimeTakenSec, string(aj), pr.PracticeID, pr.Version)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fault.Conflict("stale practice result write")
	}
	return nil
}
