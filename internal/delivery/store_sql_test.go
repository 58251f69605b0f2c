package delivery_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/db"
	"github.com/prepworks/prepworks-engine/internal/delivery"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

func newSQLStore(t *testing.T) *delivery.SQLStore {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })

	// Submissions reference a test row.
	cat := catalog.NewSQLStore(dbh, "sqlite")
	err = cat.CreateTest(ctx, catalog.Test{ID: "t1", Name: "Mock", Format: catalog.FormatLinear},
		[]catalog.Blueprint{{
			SubjectID: "verbal", SubjectName: "Verbal", Order: 1,
			SubSections: []catalog.SubSection{{ID: "v1", Name: "V1", QuestionCount: 2, TimeLimitMin: 10}},
		}})
	if err != nil {
		t.Fatalf("seed test: %v", err)
	}
	return delivery.NewSQLStore(dbh, "sqlite")
}

func seedSubmission(t *testing.T, store *delivery.SQLStore, id string) delivery.Submission {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sub := delivery.Submission{
		ID:         id,
		TestID:     "t1",
		StudentID:  "alice",
		Status:     delivery.StatusNotStarted,
		AssignedAt: now,
		ExpiresAt:  now.Add(delivery.AssignmentWindow),
	}
	if err := store.CreateSubmissions(context.Background(), []delivery.Submission{sub}); err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return sub
}

func TestSubmissionRoundTrip(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	seedSubmission(t, store, "s1")

	got, err := store.GetSubmission(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != delivery.StatusNotStarted || got.StudentID != "alice" {
		t.Errorf("got %+v", got)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	if got.CompletedAt != nil {
		t.Errorf("fresh submission has completed_at %v", got.CompletedAt)
	}
	if _, err := store.GetSubmission(ctx, "nope"); !fault.IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestSaveAttemptVersionConflict(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	seedSubmission(t, store, "s1")

	a, _ := store.GetSubmission(ctx, "s1")
	b, _ := store.GetSubmission(ctx, "s1")

	a.Status = delivery.StatusInProgress
	if err := store.SaveAttempt(ctx, a, nil); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Second writer still holds the old version.
	b.Status = delivery.StatusInProgress
	if err := store.SaveAttempt(ctx, b, nil); !fault.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	got, _ := store.GetSubmission(ctx, "s1")
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
}

func TestResultLifecycle(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	seedSubmission(t, store, "s1")

	if res, err := store.GetResult(ctx, "s1"); err != nil || res != nil {
		t.Fatalf("fresh result = (%v, %v), want (nil, nil)", res, err)
	}

	sub, _ := store.GetSubmission(ctx, "s1")
	res := &delivery.Result{
		SubmissionID: "s1",
		CorrectCount: 1,
		Sections: map[string]map[string]*delivery.SectionRecord{
			"verbal": {"v1": {
				Questions:      map[string]delivery.AnswerRecord{"q1": {IsCorrect: true, TimesVisited: 1}},
				TotalQuestions: 2,
			}},
		},
	}
	sub.Status = delivery.StatusInProgress
	if err := store.SaveAttempt(ctx, sub, res); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetResult(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CorrectCount != 1 || got.Version != 1 {
		t.Fatalf("got %+v", got)
	}
	if rec := got.Sections["verbal"]["v1"].Questions["q1"]; !rec.IsCorrect {
		t.Errorf("ledger entry lost: %+v", rec)
	}

	if err := store.DeleteResult(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if res, _ := store.GetResult(ctx, "s1"); res != nil {
		t.Fatal("result survived delete")
	}
}

func TestPersistSelectionIdempotent(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	seedSubmission(t, store, "s1")

	key := delivery.SectionKey("verbal", "v1")
	first, err := store.PersistSelection(ctx, "s1", "verbal", key, []string{"q1", "q2"})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("persisted %d ids", len(first))
	}

	// A second draw for the same slot returns the winner's list.
	second, err := store.PersistSelection(ctx, "s1", "verbal", key, []string{"q8", "q9"})
	if err != nil {
		t.Fatal(err)
	}
	if second[0] != "q1" || second[1] != "q2" {
		t.Fatalf("second persist returned %v, want the original list", second)
	}

	served, err := store.ServedQuestions(ctx, "alice", "verbal")
	if err != nil {
		t.Fatal(err)
	}
	if len(served) != 2 {
		t.Fatalf("served ledger = %v, want the winning draw only", served)
	}
}

func TestExpireOverdueGuardsTerminalStates(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()
	seedSubmission(t, store, "s1")
	seedSubmission(t, store, "s2")

	done, _ := store.GetSubmission(ctx, "s2")
	done.Status = delivery.StatusCompleted
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done.CompletedAt = &now
	if err := store.UpdateSubmission(ctx, done); err != nil {
		t.Fatal(err)
	}

	n, err := store.ExpireOverdue(ctx, now.Add(delivery.AssignmentWindow))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d submissions, want 1", n)
	}
	s1, _ := store.GetSubmission(ctx, "s1")
	if s1.Status != delivery.StatusExpired {
		t.Errorf("s1 status = %s, want EXPIRED", s1.Status)
	}
	s2, _ := store.GetSubmission(ctx, "s2")
	if s2.Status != delivery.StatusCompleted {
		t.Errorf("s2 status = %s, want COMPLETED untouched", s2.Status)
	}
}
