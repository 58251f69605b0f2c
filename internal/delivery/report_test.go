package delivery_test

import (
	"testing"
	"time"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/delivery"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

func reportFixture() (catalog.Test, []catalog.Blueprint, delivery.Submission, map[string]catalog.Question) {
	test := catalog.Test{ID: "t1", Name: "Mock Test 1", Format: catalog.FormatLinear}
	bps := []catalog.Blueprint{
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
	sub := delivery.Submission{
		ID:         "s1",
		TestID:     "t1",
		StudentID:  "alice",
		AssignedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	questions := map[string]catalog.Question{
		"q1": {ID: "q1", Type: catalog.TypeSingleChoice, Topic: "Grammar"},
		"q2": {ID: "q2", Type: catalog.TypeSingleChoice},
		"q3": {ID: "q3", Type: catalog.TypeSingleChoice, Topic: "Reading"},
	}
	return test, bps, sub, questions
}

func TestBuildReportLinearScoring(t *testing.T) {
	test, bps, sub, questions := reportFixture()

	res := delivery.NewResult("s1", bps)
	mustRecord(t, res, "v1", "q1", true, false)
	mustRecord(t, res, "v1", "q2", false, false)
	mustRecord(t, res, "v2", "q3", false, true) // skipped

	rep, err := delivery.BuildReport(test, bps, sub, res, questions)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rep.TestDate != "2026-03-01" {
		t.Errorf("test date = %s", rep.TestDate)
	}
	if len(rep.Subjects) != 1 {
		t.Fatalf("got %d subjects, want 1", len(rep.Subjects))
	}
	subj := rep.Subjects[0]
	if subj.CorrectCount != 1 || subj.IncorrectCount != 1 || subj.BlankCount != 1 {
		t.Fatalf("subject counts = (%d, %d, %d), want (1, 1, 1)",
			subj.CorrectCount, subj.IncorrectCount, subj.BlankCount)
	}
	if subj.Score != 0.75 {
		t.Errorf("subject score = %v, want 0.75", subj.Score)
	}
	if subj.MaxScore != 3 {
		t.Errorf("subject max = %v, want 3", subj.MaxScore)
	}
	if subj.MinScore != -0.75 {
		t.Errorf("subject min = %v, want -0.75", subj.MinScore)
	}
	if rep.TotalScore != 0.75 {
		t.Errorf("total = %v, want 0.75", rep.TotalScore)
	}

	v1 := subj.Sections[0]
	if v1.Score != 0.75 || v1.MaxScore != 2 {
		t.Errorf("section v1 score/max = %v/%v, want 0.75/2", v1.Score, v1.MaxScore)
	}
	if v1.Questions[0].Topic != "Grammar" || v1.Questions[1].Topic != "General" {
		t.Errorf("topics = %s/%s", v1.Questions[0].Topic, v1.Questions[1].Topic)
	}
}

func TestBuildReportUnansweredCountsIncorrect(t *testing.T) {
	test, bps, sub, questions := reportFixture()

	res := delivery.NewResult("s1", bps)
	mustRecord(t, res, "v1", "q1", true, false)
	// q2 and q3 have no ledger entry at all.

	rep, err := delivery.BuildReport(test, bps, sub, res, questions)
	if err != nil {
		t.Fatal(err)
	}
	subj := rep.Subjects[0]
	if subj.IncorrectCount != 2 {
		t.Fatalf("incorrect = %d, want 2 (unanswered slots penalized)", subj.IncorrectCount)
	}
	if subj.BlankCount != 0 {
		t.Errorf("blank = %d, want 0", subj.BlankCount)
	}
	if subj.Score != 0.5 {
		t.Errorf("score = %v, want 0.5", subj.Score)
	}
}

func TestBuildReportNilResult(t *testing.T) {
	test, bps, sub, questions := reportFixture()
	rep, err := delivery.BuildReport(test, bps, sub, nil, questions)
	if err != nil {
		t.Fatal(err)
	}
	subj := rep.Subjects[0]
	if subj.IncorrectCount != 3 || subj.CorrectCount != 0 {
		t.Fatalf("counts = (%d, %d), want (0, 3)", subj.CorrectCount, subj.IncorrectCount)
	}
}

func TestBuildReportComposite(t *testing.T) {
	test, bps, sub, questions := reportFixture()
	bps[0].Composite = true

	table := delivery.NewCompositeTable("Verbal")
	table.Put(1, 0, 540)
	delivery.RegisterCompositeTable("Verbal", table)

	res := delivery.NewResult("s1", bps)
	mustRecord(t, res, "v1", "q1", true, false)
	mustRecord(t, res, "v1", "q2", false, false)
	mustRecord(t, res, "v2", "q3", false, false)

	rep, err := delivery.BuildReport(test, bps, sub, res, questions)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	subj := rep.Subjects[0]
	if subj.Score != 540 {
		t.Errorf("composite score = %v, want 540", subj.Score)
	}
	if subj.MinScore != delivery.CompositeMinScore || subj.MaxScore != delivery.CompositeMaxScore {
		t.Errorf("band = [%v, %v], want [200, 800]", subj.MinScore, subj.MaxScore)
	}
	if rep.TotalScore != 540 {
		t.Errorf("total = %v, want 540", rep.TotalScore)
	}
}

func TestBuildReportCompositeMissFails(t *testing.T) {
	test, bps, sub, questions := reportFixture()
	bps[0].Composite = true

	table := delivery.NewCompositeTable("Verbal")
	table.Put(9, 9, 800) // does not cover (1, 0)
	delivery.RegisterCompositeTable("Verbal", table)

	res := delivery.NewResult("s1", bps)
	mustRecord(t, res, "v1", "q1", true, false)
	mustRecord(t, res, "v1", "q2", false, false)
	mustRecord(t, res, "v2", "q3", false, false)

	if _, err := delivery.BuildReport(test, bps, sub, res, questions); !fault.IsValidation(err) {
		t.Fatalf("err = %v, want validation failure on table miss", err)
	}
}

func mustRecord(t *testing.T, res *delivery.Result, sectionID, qid string, correct, skipped bool) {
	t.Helper()
	err := res.Record(delivery.AnswerInput{
		SubjectID:  "verbal",
		SectionID:  sectionID,
		QuestionID: qid,
		AnswerData: []string{"0"},
		IsSkipped:  skipped,
	}, correct)
	if err != nil {
		t.Fatalf("record %s: %v", qid, err)
	}
}
