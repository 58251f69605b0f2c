package delivery_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/delivery"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

func practiceFixture(cat *fakeCatalog) {
	cat.subjects["verbal"] = catalog.Subject{
		ID:             "verbal",
		CourseID:       "c1",
		Name:           "Verbal",
		CorrectMarks:   1,
		IncorrectMarks: 0.25,
	}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("pq%d", i)
		cat.questions[id] = singleChoice(id, "verbal", catalog.SelfPracticePool, catalog.Moderate)
	}
}

func TestPracticeFlow(t *testing.T) {
	cat := newFakeCatalog()
	practiceFixture(cat)
	clk := &clock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc, _, _ := newTestService(cat, clk)
	ctx := context.Background()

	p, ids, err := svc.StartPractice(ctx, "alice", "verbal", nil, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(ids) != 6 {
		t.Fatalf("served %d questions, want 6", len(ids))
	}

	// Two correct, one wrong, one skipped.
	answers := []struct {
		qid     string
		opt     []string
		skipped bool
	}{
		{ids[0], []string{"0"}, false},
		{ids[1], []string{"0"}, false},
		{ids[2], []string{"1"}, false},
		{ids[3], nil, true},
	}
	var totals delivery.Totals
	for _, a := range answers {
		totals, err = svc.TakePractice(ctx, p.ID, a.qid, a.opt, 20, a.skipped, false)
		if err != nil {
			t.Fatalf("take %s: %v", a.qid, err)
		}
	}
	if totals.CorrectCount != 2 || totals.IncorrectCount != 1 {
		t.Fatalf("totals = %+v, want 2 correct 1 incorrect", totals)
	}

	// Re-answer the wrong one correctly: delta merge, not a new entry.
	totals, err = svc.TakePractice(ctx, p.ID, ids[2], []string{"0"}, 10, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if totals.CorrectCount != 3 || totals.IncorrectCount != 0 {
		t.Fatalf("totals after flip = %+v, want 3 correct 0 incorrect", totals)
	}

	score, err := svc.PracticeReport(ctx, p.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if score.SubjectName != "Verbal" || score.Date != "2026-03-02" {
		t.Errorf("header = %s/%s", score.SubjectName, score.Date)
	}
	if score.CorrectCount != 3 || score.IncorrectCount != 0 || score.BlankCount != 1 {
		t.Fatalf("counts = (%d, %d, %d), want (3, 0, 1)",
			score.CorrectCount, score.IncorrectCount, score.BlankCount)
	}
	// 4 answered questions at 1 mark each; 3 correct, none incorrect.
	if score.MaxScore != 4 || score.Score != 3 {
		t.Errorf("score = %v/%v, want 3/4", score.Score, score.MaxScore)
	}
	if len(score.Questions) != 4 {
		t.Errorf("report has %d questions, want 4", len(score.Questions))
	}
}

func TestPracticeReportWithoutAnswers(t *testing.T) {
	cat := newFakeCatalog()
	practiceFixture(cat)
	clk := &clock{t: time.Now()}
	svc, _, _ := newTestService(cat, clk)
	ctx := context.Background()

	p, _, err := svc.StartPractice(ctx, "alice", "verbal", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.PracticeReport(ctx, p.ID); !fault.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestStartPracticeUnknownSubject(t *testing.T) {
	cat := newFakeCatalog()
	clk := &clock{t: time.Now()}
	svc, _, _ := newTestService(cat, clk)
	if _, _, err := svc.StartPractice(context.Background(), "alice", "nope", nil, nil); !fault.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}
