package delivery

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/fault"
	"github.com/prepworks/prepworks-engine/internal/notify"
	syncx "github.com/prepworks/prepworks-engine/internal/sync"
)

// Catalog is the slice of the content catalog the engine consumes.
type Catalog interface {
	GetTest(ctx context.Context, id string) (catalog.Test, error)
	BlueprintsForTest(ctx context.Context, testID string) ([]catalog.Blueprint, error)
	GetQuestion(ctx context.Context, id string) (catalog.Question, error)
	QuestionsByIDs(ctx context.Context, ids []string) (map[string]catalog.Question, error)
	Pool(ctx context.Context, subjectID string, exclude []string) ([]catalog.PoolEntry, error)
	PracticeQuestionIDs(ctx context.Context, subjectID string, topics, difficulties []string) ([]string, error)
	GetSubject(ctx context.Context, id string) (catalog.Subject, error)
}

// EventSink receives engine lifecycle events for the append-only log.
type EventSink interface {
	AppendJSON(ctx context.Context, typ, key string, data any) error
}

// maxWriteAttempts bounds the optimistic-lock retry of read-modify-write
// operations before the conflict is surfaced.
const maxWriteAttempts = 3

// Service orchestrates the test-delivery engine: assignment, answer intake,
// adaptive selection, progress and reporting.
type Service struct {
	store    Store
	cat      Catalog
	selector *Selector
	notifier notify.Notifier
	events   EventSink
	now      func() time.Time
}

type Option func(*Service)

// WithClock injects the time source (tests use a fixed clock).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSelector injects a seeded selector for deterministic draws.
func WithSelector(sel *Selector) Option { return func(s *Service) { s.selector = sel } }

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithEvents(e EventSink) Option { return func(s *Service) { s.events = e } }

func NewService(store Store, cat Catalog, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cat:      cat,
		selector: NewSelector(rand.New(rand.NewSource(time.Now().UnixNano()))),
		notifier: notify.Noop{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AssignTest creates one submission per student with a fresh 48h window and
// fires assignment notifications. Notification or event-log failures are
// logged, never propagated.
func (s *Service) AssignTest(ctx context.Context, testID string, studentIDs []string) ([]Submission, error) {
	if len(studentIDs) == 0 {
		return nil, fault.Validation("at least one student id is required")
	}
	test, err := s.cat.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	assigned := s.now().UTC()
	subs := make([]Submission, 0, len(studentIDs))
	for _, sid := range studentIDs {
		subs = append(subs, Submission{
			ID:         uuid.NewString(),
			TestID:     test.ID,
			StudentID:  sid,
			Status:     StatusNotStarted,
			AssignedAt: assigned,
			ExpiresAt:  assigned.Add(AssignmentWindow),
		})
	}
	if err := s.store.CreateSubmissions(ctx, subs); err != nil {
		return nil, err
	}

	for _, sub := range subs {
		params := map[string]string{
			notify.ParamTestName:    test.Name,
			notify.ParamReferenceID: sub.ID,
		}
		if err := s.notifier.Notify(ctx, notify.EventTestAssigned, params, sub.StudentID); err != nil {
			log.Printf("notify assignment for %s: %v", sub.ID, err)
		}
		s.logEvent(ctx, syncx.EventTestAssigned, sub.ID, sub)
	}
	return subs, nil
}

// TakeTest records one answer event with idempotent re-answer semantics and
// re-evaluates completion. Concurrent writes against the same submission are
// resolved by retrying the read-modify-write against fresh state.
func (s *Service) TakeTest(ctx context.Context, submissionID string, in AnswerInput) (Totals, error) {
	q, err := s.cat.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return Totals{}, err
	}
	verdict := Evaluate(q, in.AnswerData, in.IsSkipped)

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sub, test, bps, res, err := s.loadAttempt(ctx, submissionID)
		if err != nil {
			return Totals{}, err
		}
		if res == nil {
			res = NewResult(sub.ID, bps)
		}
		reconcileDynamicTotals(test, sub, res)
		if err := res.Record(in, verdict); err != nil {
			return Totals{}, err
		}

		completedNow := s.applyCompletion(&sub, res)
		if err := s.store.SaveAttempt(ctx, sub, res); err != nil {
			if fault.IsConflict(err) {
				lastErr = err
				continue
			}
			return Totals{}, err
		}
		if completedNow {
			s.onCompleted(ctx, sub, test)
		}
		return res.Totals(), nil
	}
	return Totals{}, lastErr
}

// SkipSection inserts skipped records for every unanswered question of the
// sub-section and re-evaluates completion. Idempotent: a second call with
// nothing left to skip changes no counts.
func (s *Service) SkipSection(ctx context.Context, submissionID, subjectID, sectionID string) (Totals, error) {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sub, test, bps, res, err := s.loadAttempt(ctx, submissionID)
		if err != nil {
			return Totals{}, err
		}
		ss, err := subSection(bps, subjectID, sectionID)
		if err != nil {
			return Totals{}, err
		}
		ids := AssignedQuestions(test, sub, subjectID, ss)

		if res == nil {
			res = NewResult(sub.ID, bps)
		}
		reconcileDynamicTotals(test, sub, res)
		if _, err := res.SkipUnanswered(subjectID, sectionID, ids); err != nil {
			return Totals{}, err
		}

		completedNow := s.applyCompletion(&sub, res)
		if err := s.store.SaveAttempt(ctx, sub, res); err != nil {
			if fault.IsConflict(err) {
				lastErr = err
				continue
			}
			return Totals{}, err
		}
		if completedNow {
			s.onCompleted(ctx, sub, test)
		}
		return res.Totals(), nil
	}
	return Totals{}, lastErr
}

// SectionQuestions resolves the question list for a sub-section slot. Linear
// tests return the curated list; dynamic tests select on first request and
// persist, so every subsequent call returns the same list. All freshly
// served IDs join the student's per-subject exclusion ledger.
func (s *Service) SectionQuestions(ctx context.Context, submissionID, subjectID, sectionID string) ([]string, error) {
	sub, test, bps, res, err := s.loadAttempt(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	ss, err := subSection(bps, subjectID, sectionID)
	if err != nil {
		return nil, err
	}

	if test.Format != catalog.FormatDynamic {
		return ss.Questions, nil
	}

	key := SectionKey(subjectID, sectionID)
	if existing, ok := sub.Selected[key]; ok && len(existing) > 0 {
		return existing, nil
	}

	exclude, err := s.store.ServedQuestions(ctx, sub.StudentID, subjectID)
	if err != nil {
		return nil, err
	}
	pool, err := s.cat.Pool(ctx, subjectID, exclude)
	if err != nil {
		return nil, err
	}

	var ids []string
	if isFirstSlot(bps, subjectID, sectionID) {
		ids = s.selector.FirstSection(pool, ss.QuestionCount)
	} else {
		// Adaptivity keys off the running result; without one there is
		// no performance signal and no questions are served yet.
		if res == nil {
			return []string{}, nil
		}
		ids = s.selector.AdaptiveSection(pool, ss.QuestionCount, res.CorrectCount, res.IncorrectCount)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	return s.store.PersistSelection(ctx, submissionID, subjectID, key, ids)
}

// Progress reconstructs where the student currently is for resume.
func (s *Service) Progress(ctx context.Context, submissionID string) (Progress, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Progress{}, err
	}
	test, err := s.cat.GetTest(ctx, sub.TestID)
	if err != nil {
		return Progress{}, err
	}
	bps, err := s.cat.BlueprintsForTest(ctx, test.ID)
	if err != nil {
		return Progress{}, err
	}
	res, err := s.store.GetResult(ctx, submissionID)
	if err != nil {
		return Progress{}, err
	}
	return ResolveProgress(test, bps, sub, res), nil
}

// Report builds the nested score report for a submission.
func (s *Service) Report(ctx context.Context, submissionID string) (ScoreReport, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return ScoreReport{}, err
	}
	test, err := s.cat.GetTest(ctx, sub.TestID)
	if err != nil {
		return ScoreReport{}, err
	}
	bps, err := s.cat.BlueprintsForTest(ctx, test.ID)
	if err != nil {
		return ScoreReport{}, err
	}
	res, err := s.store.GetResult(ctx, submissionID)
	if err != nil {
		return ScoreReport{}, err
	}

	var allIDs []string
	for _, bp := range bps {
		for _, ss := range bp.SubSections {
			allIDs = append(allIDs, AssignedQuestions(test, sub, bp.SubjectID, ss)...)
		}
	}
	questions, err := s.cat.QuestionsByIDs(ctx, allIDs)
	if err != nil {
		return ScoreReport{}, err
	}
	return BuildReport(test, bps, sub, res, questions)
}

// Reassign resets an expired submission for a fresh attempt: status back to
// NOT_STARTED, a new 48h window, and the prior ledger discarded.
func (s *Service) Reassign(ctx context.Context, submissionID string) (Submission, error) {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sub, err := s.store.GetSubmission(ctx, submissionID)
		if err != nil {
			return Submission{}, err
		}
		if sub.Status != StatusExpired {
			return Submission{}, fault.InvalidState("only expired tests can be reassigned")
		}
		sub.Status = StatusNotStarted
		sub.ExpiresAt = s.now().UTC().Add(AssignmentWindow)
		sub.CompletedAt = nil
		if err := s.store.UpdateSubmission(ctx, sub); err != nil {
			if fault.IsConflict(err) {
				lastErr = err
				continue
			}
			return Submission{}, err
		}
		if err := s.store.DeleteResult(ctx, submissionID); err != nil {
			return Submission{}, err
		}
		s.logEvent(ctx, syncx.EventSubmissionReset, sub.ID, sub)
		sub.Version++
		return sub, nil
	}
	return Submission{}, lastErr
}

/* ----------------------------- internals ----------------------------- */

// loadAttempt fetches the submission with its test, blueprints and ledger,
// rejecting expired submissions with a state error distinct from not-found.
func (s *Service) loadAttempt(ctx context.Context, submissionID string) (Submission, catalog.Test, []catalog.Blueprint, *Result, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, catalog.Test{}, nil, nil, err
	}
	if sub.Status == StatusExpired {
		return Submission{}, catalog.Test{}, nil, nil,
			fault.InvalidState("test has expired; contact an admin to reassign it")
	}
	test, err := s.cat.GetTest(ctx, sub.TestID)
	if err != nil {
		return Submission{}, catalog.Test{}, nil, nil, err
	}
	bps, err := s.cat.BlueprintsForTest(ctx, test.ID)
	if err != nil {
		return Submission{}, catalog.Test{}, nil, nil, err
	}
	res, err := s.store.GetResult(ctx, submissionID)
	if err != nil {
		return Submission{}, catalog.Test{}, nil, nil, err
	}
	return sub, test, bps, res, nil
}

// applyCompletion moves the submission forward after a ledger change.
// Monotonic: a COMPLETED submission never regresses to IN_PROGRESS. Returns
// true when this change completed the submission.
func (s *Service) applyCompletion(sub *Submission, res *Result) bool {
	if sub.Status == StatusCompleted {
		return false
	}
	if res.AllAnswered() {
		sub.Status = StatusCompleted
		t := s.now().UTC()
		sub.CompletedAt = &t
		return true
	}
	sub.Status = StatusInProgress
	return false
}

func (s *Service) onCompleted(ctx context.Context, sub Submission, test catalog.Test) {
	params := map[string]string{
		notify.ParamTestName:    test.Name,
		notify.ParamReferenceID: sub.ID,
	}
	if err := s.notifier.Notify(ctx, notify.EventTestCompleted, params, sub.StudentID); err != nil {
		log.Printf("notify completion for %s: %v", sub.ID, err)
	}
	s.logEvent(ctx, syncx.EventSubmissionCompleted, sub.ID, sub)
}

func (s *Service) logEvent(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.AppendJSON(ctx, typ, key, data); err != nil {
		log.Printf("event log %s %s: %v", typ, key, err)
	}
}

func subSection(bps []catalog.Blueprint, subjectID, sectionID string) (catalog.SubSection, error) {
	for _, bp := range bps {
		if bp.SubjectID != subjectID {
			continue
		}
		ss, ok := bp.SubSectionByID(sectionID)
		if !ok {
			return catalog.SubSection{}, fault.NotFound("sub-section not found")
		}
		return ss, nil
	}
	return catalog.SubSection{}, fault.NotFound("subject not found on test")
}

// isFirstSlot reports whether (subjectID, sectionID) is the first
// sub-section of the first subject in blueprint order — the slot that seeds
// a dynamic attempt with an even difficulty spread.
func isFirstSlot(bps []catalog.Blueprint, subjectID, sectionID string) bool {
	if len(bps) == 0 || len(bps[0].SubSections) == 0 {
		return false
	}
	return bps[0].SubjectID == subjectID && bps[0].SubSections[0].ID == sectionID
}

// reconcileDynamicTotals shrinks a section's expected total to its persisted
// selection size when a dynamic draw under-filled, keeping completion
// reachable on a thin pool.
func reconcileDynamicTotals(test catalog.Test, sub Submission, res *Result) {
	if test.Format != catalog.FormatDynamic {
		return
	}
	for subjectID, sections := range res.Sections {
		for sectionID, sec := range sections {
			sel, ok := sub.Selected[SectionKey(subjectID, sectionID)]
			if ok && len(sel) > 0 && len(sel) < sec.TotalQuestions {
				sec.TotalQuestions = len(sel)
			}
		}
	}
}
