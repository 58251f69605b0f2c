package delivery

import (
	"context"
	"time"
)

// Store persists submissions, ledgers and the per-student served-question
// history. Implementations must make SaveAttempt atomic (submission and
// result commit together) and version-checked: a stale write returns a
// Conflict fault so the caller can retry the read-modify-write.
type Store interface {
	CreateSubmissions(ctx context.Context, subs []Submission) error
	GetSubmission(ctx context.Context, id string) (Submission, error)

	// GetResult returns (nil, nil) when no ledger exists yet.
	GetResult(ctx context.Context, submissionID string) (*Result, error)

	// SaveAttempt writes the submission and its ledger in one transaction.
	SaveAttempt(ctx context.Context, sub Submission, res *Result) error

	// UpdateSubmission writes the submission alone (reassignment, selection
	// bookkeeping), version-checked like SaveAttempt.
	UpdateSubmission(ctx context.Context, sub Submission) error

	DeleteResult(ctx context.Context, submissionID string) error

	// PersistSelection stores a dynamic selection for sectionKey unless one
	// is already persisted, appending newly served IDs to the student's
	// ledger for the subject in the same transaction. The returned list is
	// authoritative: on a lost race it is the winner's selection.
	PersistSelection(ctx context.Context, submissionID, subjectID, sectionKey string, ids []string) ([]string, error)

	// ServedQuestions is the monotonically growing set of question IDs ever
	// served to the student for the subject.
	ServedQuestions(ctx context.Context, studentID, subjectID string) ([]string, error)

	// ExpireOverdue flips NOT_STARTED and IN_PROGRESS submissions past their
	// expiry to EXPIRED, never touching COMPLETED ones. Returns the number
	// of submissions flipped.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)

	CreatePractice(ctx context.Context, p Practice) error
	GetPractice(ctx context.Context, id string) (Practice, error)
	GetPracticeResult(ctx context.Context, practiceID string) (*PracticeResult, error)
	SavePracticeResult(ctx context.Context, pr *PracticeResult) error
}
