package delivery

import (
	"time"

	"github.com/prepworks/prepworks-engine/internal/catalog"
)

type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
)

// AssignmentWindow is how long a student has from assignment to completion.
const AssignmentWindow = 48 * time.Hour

// Submission is the per-(test, student) lifecycle record. Selected holds the
// per-student question lists of a dynamic test, keyed by SectionKey; linear
// tests never populate it. Version backs optimistic locking.
type Submission struct {
	ID          string              `json:"id"`
	TestID      string              `json:"test_id"`
	StudentID   string              `json:"student_id"`
	Status      Status              `json:"status"`
	AssignedAt  time.Time           `json:"assigned_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Selected    map[string][]string `json:"selected,omitempty"`
	Version     int64               `json:"-"`
}

// SectionKey identifies one sub-section slot of one subject.
func SectionKey(subjectID, sectionID string) string {
	return subjectID + "_" + sectionID
}

// AnswerRecord is one question's entry in the ledger. FirstTimeTakenSec is
// fixed at the first visit; TimeTakenSec accrues across visits.
type AnswerRecord struct {
	AnswerData        []string `json:"answer_data"`
	IsSkipped         bool     `json:"is_skipped"`
	IsCorrect         bool     `json:"is_correct"`
	IsMarkedForReview bool     `json:"is_marked_for_review"`
	FirstTimeTakenSec int      `json:"first_time_taken_sec"`
	TimeTakenSec      int      `json:"time_taken_sec"`
	TimesVisited      int      `json:"times_visited"`
}

// SectionRecord tracks one sub-section's answers and timing. The sub-section
// is complete once len(Questions) == TotalQuestions.
type SectionRecord struct {
	Questions      map[string]AnswerRecord `json:"questions_answered"`
	TimeTakenSec   int                     `json:"time_taken_sec"`
	TotalQuestions int                     `json:"total_questions"`
}

// Result is the answer ledger for one submission, created lazily on the
// first answer. Sections is keyed subjectID then sectionID.
type Result struct {
	SubmissionID   string                               `json:"submission_id"`
	CorrectCount   int                                  `json:"correct_count"`
	IncorrectCount int                                  `json:"incorrect_count"`
	TimeTakenSec   int                                  `json:"time_taken_sec"`
	Sections       map[string]map[string]*SectionRecord `json:"sections"`
	Version        int64                                `json:"-"`
}

// NewResult returns an empty ledger pre-shaped from the test's blueprints:
// one SectionRecord per sub-section, totals taken from the blueprint.
func NewResult(submissionID string, bps []catalog.Blueprint) *Result {
	r := &Result{
		SubmissionID: submissionID,
		Sections:     make(map[string]map[string]*SectionRecord, len(bps)),
	}
	for _, bp := range bps {
		subj := make(map[string]*SectionRecord, len(bp.SubSections))
		for _, ss := range bp.SubSections {
			subj[ss.ID] = &SectionRecord{
				Questions:      map[string]AnswerRecord{},
				TotalQuestions: ss.QuestionCount,
			}
		}
		r.Sections[bp.SubjectID] = subj
	}
	return r
}

// Section returns the record at (subjectID, sectionID), or nil.
func (r *Result) Section(subjectID, sectionID string) *SectionRecord {
	subj, ok := r.Sections[subjectID]
	if !ok {
		return nil
	}
	return subj[sectionID]
}

// AllAnswered reports whether every sub-section has as many ledger entries
// as its blueprint demands.
func (r *Result) AllAnswered() bool {
	for _, subj := range r.Sections {
		for _, sec := range subj {
			if len(sec.Questions) != sec.TotalQuestions {
				return false
			}
		}
	}
	return true
}

// Totals is the running summary returned after each answer.
type Totals struct {
	CorrectCount   int `json:"correct_count"`
	IncorrectCount int `json:"incorrect_count"`
	TimeTakenSec   int `json:"time_taken_sec"`
}

func (r *Result) Totals() Totals {
	return Totals{
		CorrectCount:   r.CorrectCount,
		IncorrectCount: r.IncorrectCount,
		TimeTakenSec:   r.TimeTakenSec,
	}
}

// Practice is a flat self-practice session over one subject's pool.
type Practice struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	SubjectID string    `json:"subject_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PracticeResult is the practice ledger: no sections, one flat answer map.
type PracticeResult struct {
	PracticeID     string                  `json:"practice_id"`
	CorrectCount   int                     `json:"correct_count"`
	IncorrectCount int                     `json:"incorrect_count"`
	TimeTakenSec   int                     `json:"time_taken_sec"`
	Answers        map[string]AnswerRecord `json:"answers"`
	Version        int64                   `json:"-"`
}
