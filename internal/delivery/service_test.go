package delivery_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/delivery"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

/* ---------------- fakes ---------------- */

type fakeCatalog struct {
	tests     map[string]catalog.Test
	bps       map[string][]catalog.Blueprint
	questions map[string]catalog.Question
	subjects  map[string]catalog.Subject
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tests:     map[string]catalog.Test{},
		bps:       map[string][]catalog.Blueprint{},
		questions: map[string]catalog.Question{},
		subjects:  map[string]catalog.Subject{},
	}
}

func (f *fakeCatalog) GetTest(_ context.Context, id string) (catalog.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return catalog.Test{}, fault.NotFound("test %q not found", id)
	}
	return t, nil
}

func (f *fakeCatalog) BlueprintsForTest(_ context.Context, testID string) ([]catalog.Blueprint, error) {
	return f.bps[testID], nil
}

func (f *fakeCatalog) GetQuestion(_ context.Context, id string) (catalog.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return catalog.Question{}, fault.NotFound("question %q not found", id)
	}
	return q, nil
}

func (f *fakeCatalog) QuestionsByIDs(_ context.Context, ids []string) (map[string]catalog.Question, error) {
	out := map[string]catalog.Question{}
	for _, id := range ids {
		if q, ok := f.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (f *fakeCatalog) Pool(_ context.Context, subjectID string, exclude []string) ([]catalog.PoolEntry, error) {
	skip := map[string]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var pool []catalog.PoolEntry
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.Pool == catalog.FullLengthPool && !skip[q.ID] {
			pool = append(pool, catalog.PoolEntry{ID: q.ID, Difficulty: q.Difficulty})
		}
	}
	return pool, nil
}

func (f *fakeCatalog) PracticeQuestionIDs(_ context.Context, subjectID string, topics, difficulties []string) ([]string, error) {
	var ids []string
	for _, q := range f.questions {
		if q.SubjectID == subjectID && q.Pool == catalog.SelfPracticePool {
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func (f *fakeCatalog) GetSubject(_ context.Context, id string) (catalog.Subject, error) {
	s, ok := f.subjects[id]
	if !ok {
		return catalog.Subject{}, fault.NotFound("subject %q not found", id)
	}
	return s, nil
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event string, _ map[string]string, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

/* ---------------- fixtures ---------------- */

// singleChoice builds a question whose first option is correct.
func singleChoice(id, subjectID, pool string, tier catalog.Difficulty) catalog.Question {
	return catalog.Question{
		ID:         id,
		SubjectID:  subjectID,
		Type:       catalog.TypeSingleChoice,
		Pool:       pool,
		Difficulty: tier,
		Options:    []catalog.Option{{Text: "right", IsCorrect: true}, {Text: "wrong"}},
	}
}

// linearFixture: one subject, two sections (2 + 1 questions), curated lists.
func linearFixture(cat *fakeCatalog) {
	cat.tests["t1"] = catalog.Test{ID: "t1", CourseID: "c1", Name: "Mock Test 1", Format: catalog.FormatLinear}
	cat.bps["t1"] = []catalog.Blueprint{
		{
			TestID:         "t1",
			SubjectID:      "verbal",
			SubjectName:    "Verbal",
			Order:          1,
			CorrectMarks:   1,
			IncorrectMarks: 0.25,
			SubSections: []catalog.SubSection{
				{ID: "v1", Name: "Verbal 1", QuestionCount: 2, TimeLimitMin: 10, Questions: []string{"q1", "q2"}},
				{ID: "v2", Name: "Verbal 2", QuestionCount: 1, TimeLimitMin: 5, Questions: []string{"q3"}},
			},
		},
	}
	for _, id := range []string{"q1", "q2", "q3"} {
		cat.questions[id] = singleChoice(id, "verbal", catalog.FullLengthPool, catalog.Moderate)
	}
}

// dynamicFixture: one subject, two dynamic sections of 5, 30-question pool.
func dynamicFixture(cat *fakeCatalog) {
	cat.tests["d1"] = catalog.Test{ID: "d1", CourseID: "c1", Name: "Adaptive Test 1", Format: catalog.FormatDynamic}
	cat.bps["d1"] = []catalog.Blueprint{
		{
			TestID:         "d1",
			SubjectID:      "quant",
			SubjectName:    "Quantitative",
			Order:          1,
			CorrectMarks:   1,
			IncorrectMarks: 0,
			SubSections: []catalog.SubSection{
				{ID: "m1", Name: "Math 1", QuestionCount: 5, TimeLimitMin: 20},
				{ID: "m2", Name: "Math 2", QuestionCount: 5, TimeLimitMin: 20},
			},
		},
	}
	for i := 0; i < 30; i++ {
		tier := catalog.Tiers[i%len(catalog.Tiers)]
		id := fmt.Sprintf("dq%02d", i)
		cat.questions[id] = singleChoice(id, "quant", catalog.FullLengthPool, tier)
	}
}

func newTestService(cat *fakeCatalog, clk *clock) (*delivery.Service, delivery.Store, *fakeNotifier) {
	store := delivery.NewInMemoryStore()
	n := &fakeNotifier{}
	svc := delivery.NewService(store, cat,
		delivery.WithClock(clk.now),
		delivery.WithSelector(delivery.NewSelector(rand.New(rand.NewSource(1)))),
		delivery.WithNotifier(n),
	)
	return svc, store, n
}

/* ---------------- tests ---------------- */

func TestAssignTestWindow(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, n := newTestService(cat, clk)

	subs, err := svc.AssignTest(context.Background(), "t1", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d submissions, want 2", len(subs))
	}
	for _, sub := range subs {
		if sub.Status != delivery.StatusNotStarted {
			t.Errorf("status = %s, want NOT_STARTED", sub.Status)
		}
		if got := sub.ExpiresAt.Sub(sub.AssignedAt); got != delivery.AssignmentWindow {
			t.Errorf("window = %s, want %s", got, delivery.AssignmentWindow)
		}
	}
	if len(n.events) != 2 {
		t.Errorf("sent %d notifications, want 2", len(n.events))
	}
}

func TestAssignTestUnknownTest(t *testing.T) {
	cat := newFakeCatalog()
	clk := &clock{t: time.Now()}
	svc, _, _ := newTestService(cat, clk)
	if _, err := svc.AssignTest(context.Background(), "missing", []string{"alice"}); !fault.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestTakeTestToCompletion(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, n := newTestService(cat, clk)
	ctx := context.Background()

	subs, err := svc.AssignTest(ctx, "t1", []string{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	id := subs[0].ID

	take := func(qid, sectionID string, opt string) delivery.Totals {
		t.Helper()
		totals, err := svc.TakeTest(ctx, id, delivery.AnswerInput{
			SubjectID:    "verbal",
			SectionID:    sectionID,
			QuestionID:   qid,
			AnswerData:   []string{opt},
			TimeTakenSec: 30,
		})
		if err != nil {
			t.Fatalf("take %s: %v", qid, err)
		}
		return totals
	}

	take("q1", "v1", "0") // correct
	totals := take("q2", "v1", "1")
	if totals.CorrectCount != 1 || totals.IncorrectCount != 1 {
		t.Fatalf("totals = %+v, want 1 correct 1 incorrect", totals)
	}

	sub, err := store.GetSubmission(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != delivery.StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", sub.Status)
	}

	take("q3", "v2", "0")
	sub, err = store.GetSubmission(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != delivery.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", sub.Status)
	}
	if sub.CompletedAt == nil || !sub.CompletedAt.Equal(clk.t) {
		t.Errorf("completed at = %v, want %v", sub.CompletedAt, clk.t)
	}
	completions := 0
	for _, e := range n.events {
		if e == "TEST_COMPLETED" {
			completions++
		}
	}
	if completions != 1 {
		t.Errorf("completion notified %d times, want 1", completions)
	}

	// Re-answering after completion never regresses the status.
	take("q2", "v1", "0")
	sub, _ = store.GetSubmission(ctx, id)
	if sub.Status != delivery.StatusCompleted {
		t.Fatalf("status regressed to %s", sub.Status)
	}
}

func TestTakeTestExpiredRejected(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, err := svc.AssignTest(ctx, "t1", []string{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	clk.advance(delivery.AssignmentWindow + time.Hour)
	sweeper := delivery.NewSweeper(store, time.Minute, delivery.SweepClock(clk.now))
	if n, err := sweeper.SweepOnce(ctx); err != nil || n != 1 {
		t.Fatalf("sweep = (%d, %v), want (1, nil)", n, err)
	}

	_, err = svc.TakeTest(ctx, subs[0].ID, delivery.AnswerInput{
		SubjectID: "verbal", SectionID: "v1", QuestionID: "q1", AnswerData: []string{"0"},
	})
	if !fault.IsInvalidState(err) {
		t.Fatalf("err = %v, want invalid-state", err)
	}
}

func TestSweepLeavesCompletedAlone(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, _ := svc.AssignTest(ctx, "t1", []string{"alice"})
	id := subs[0].ID
	if _, err := svc.SkipSection(ctx, id, "verbal", "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SkipSection(ctx, id, "verbal", "v2"); err != nil {
		t.Fatal(err)
	}

	clk.advance(delivery.AssignmentWindow + time.Hour)
	sweeper := delivery.NewSweeper(store, time.Minute, delivery.SweepClock(clk.now))
	if n, err := sweeper.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("sweep = (%d, %v), want (0, nil)", n, err)
	}
	sub, _ := store.GetSubmission(ctx, id)
	if sub.Status != delivery.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", sub.Status)
	}
}

func TestSkipSectionFillsUnanswered(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, _ := svc.AssignTest(ctx, "t1", []string{"alice"})
	id := subs[0].ID

	if _, err := svc.TakeTest(ctx, id, delivery.AnswerInput{
		SubjectID: "verbal", SectionID: "v1", QuestionID: "q1", AnswerData: []string{"0"},
	}); err != nil {
		t.Fatal(err)
	}

	totals, err := svc.SkipSection(ctx, id, "verbal", "v1")
	if err != nil {
		t.Fatal(err)
	}
	// q1 stays correct, q2 becomes a skipped incorrect.
	if totals.CorrectCount != 1 || totals.IncorrectCount != 1 {
		t.Fatalf("totals = %+v, want 1 correct 1 incorrect", totals)
	}

	// Skipping again is a no-op.
	again, err := svc.SkipSection(ctx, id, "verbal", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if again != totals {
		t.Fatalf("second skip changed totals: %+v -> %+v", totals, again)
	}
}

func TestReassignResetsExpired(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, _ := svc.AssignTest(ctx, "t1", []string{"alice"})
	id := subs[0].ID

	if _, err := svc.TakeTest(ctx, id, delivery.AnswerInput{
		SubjectID: "verbal", SectionID: "v1", QuestionID: "q1", AnswerData: []string{"0"},
	}); err != nil {
		t.Fatal(err)
	}

	// Not expired yet: reassign refused.
	if _, err := svc.Reassign(ctx, id); !fault.IsInvalidState(err) {
		t.Fatalf("err = %v, want invalid-state", err)
	}

	clk.advance(delivery.AssignmentWindow + time.Hour)
	sweeper := delivery.NewSweeper(store, time.Minute, delivery.SweepClock(clk.now))
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatal(err)
	}

	sub, err := svc.Reassign(ctx, id)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if sub.Status != delivery.StatusNotStarted {
		t.Fatalf("status = %s, want NOT_STARTED", sub.Status)
	}
	if want := clk.t.Add(delivery.AssignmentWindow); !sub.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want %v", sub.ExpiresAt, want)
	}
	res, err := store.GetResult(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatal("prior ledger survived reassignment")
	}
}

func TestDynamicSelectionPersists(t *testing.T) {
	cat := newFakeCatalog()
	dynamicFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, store, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, err := svc.AssignTest(ctx, "d1", []string{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	id := subs[0].ID

	first, err := svc.SectionQuestions(ctx, id, "quant", "m1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("selected %d questions, want 5", len(first))
	}

	// Same slot again returns the persisted list, not a re-draw.
	second, err := svc.SectionQuestions(ctx, id, "quant", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("re-request changed size: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("re-request changed list at %d: %s vs %s", i, first[i], second[i])
		}
	}

	served, err := store.ServedQuestions(ctx, "alice", "quant")
	if err != nil {
		t.Fatal(err)
	}
	if len(served) != 5 {
		t.Fatalf("served ledger has %d entries, want 5", len(served))
	}
}

func TestDynamicSecondSectionNeedsHistory(t *testing.T) {
	cat := newFakeCatalog()
	dynamicFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, _ := svc.AssignTest(ctx, "d1", []string{"alice"})
	id := subs[0].ID

	// Without any answers there is no performance signal yet.
	ids, err := svc.SectionQuestions(ctx, id, "quant", "m2")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("second section served %d questions with no history", len(ids))
	}

	first, err := svc.SectionQuestions(ctx, id, "quant", "m1")
	if err != nil {
		t.Fatal(err)
	}
	for _, qid := range first {
		if _, err := svc.TakeTest(ctx, id, delivery.AnswerInput{
			SubjectID: "quant", SectionID: "m1", QuestionID: qid, AnswerData: []string{"0"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	second, err := svc.SectionQuestions(ctx, id, "quant", "m2")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 5 {
		t.Fatalf("selected %d questions, want 5", len(second))
	}
	seen := map[string]bool{}
	for _, qid := range first {
		seen[qid] = true
	}
	for _, qid := range second {
		if seen[qid] {
			t.Fatalf("question %s repeated across sections", qid)
		}
	}
}

func TestDynamicExclusionAcrossSubmissions(t *testing.T) {
	cat := newFakeCatalog()
	dynamicFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, _ := newTestService(cat, clk)
	ctx := context.Background()

	// Two dynamic tests sharing the pool for the same student.
	cat.tests["d2"] = catalog.Test{ID: "d2", CourseID: "c1", Name: "Adaptive Test 2", Format: catalog.FormatDynamic}
	cat.bps["d2"] = cat.bps["d1"]

	s1, _ := svc.AssignTest(ctx, "d1", []string{"alice"})
	s2, _ := svc.AssignTest(ctx, "d2", []string{"alice"})

	a, err := svc.SectionQuestions(ctx, s1[0].ID, "quant", "m1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.SectionQuestions(ctx, s2[0].ID, "quant", "m1")
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, qid := range a {
		seen[qid] = true
	}
	for _, qid := range b {
		if seen[qid] {
			t.Fatalf("question %s served twice to the same student", qid)
		}
	}
}

func TestProgressResume(t *testing.T) {
	cat := newFakeCatalog()
	linearFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _, _ := newTestService(cat, clk)
	ctx := context.Background()

	subs, _ := svc.AssignTest(ctx, "t1", []string{"alice"})
	id := subs[0].ID

	// Fresh submission: first question of the first section, full budget.
	p, err := svc.Progress(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.SectionID != "v1" || p.QuestionID != "q1" {
		t.Fatalf("fresh progress at %s/%s, want v1/q1", p.SectionID, p.QuestionID)
	}
	if p.RemainingTimeSec != 600 {
		t.Errorf("remaining = %d, want 600", p.RemainingTimeSec)
	}

	if _, err := svc.TakeTest(ctx, id, delivery.AnswerInput{
		SubjectID: "verbal", SectionID: "v1", QuestionID: "q1",
		AnswerData: []string{"0"}, TimeTakenSec: 120,
	}); err != nil {
		t.Fatal(err)
	}

	p, err = svc.Progress(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.QuestionID != "q2" || p.QuestionIndex != 1 {
		t.Fatalf("progress at %s (index %d), want q2 (index 1)", p.QuestionID, p.QuestionIndex)
	}
	if p.RemainingTimeSec != 480 {
		t.Errorf("remaining = %d, want 480", p.RemainingTimeSec)
	}
	if st, ok := p.AnswerMap["q1"]; !ok || !st.IsAnswered {
		t.Errorf("answer map missing q1: %+v", p.AnswerMap)
	}

	// Complete everything: position exhausted.
	if _, err := svc.SkipSection(ctx, id, "verbal", "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SkipSection(ctx, id, "verbal", "v2"); err != nil {
		t.Fatal(err)
	}
	p, err = svc.Progress(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Exhausted {
		t.Fatal("completed submission not reported exhausted")
	}
}
