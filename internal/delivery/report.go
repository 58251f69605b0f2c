package delivery

import (
	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

type QuestionReport struct {
	SrNo              int      `json:"sr_no"`
	QuestionID        string   `json:"question_id"`
	Type              string   `json:"question_type"`
	Topic             string   `json:"topic"`
	Correct           bool     `json:"result"`
	TimeTakenSec      int      `json:"total_time_sec"`
	FirstTimeTakenSec int      `json:"first_time_taken_sec"`
	TimesVisited      int      `json:"times_visited"`
	Marked            bool     `json:"marked"`
	Skipped           bool     `json:"is_skipped"`
	SelectedOptions   []string `json:"selected_options"`
}

type SectionReport struct {
	SectionID      string           `json:"section_id"`
	Name           string           `json:"name"`
	CorrectCount   int              `json:"correct_count"`
	IncorrectCount int              `json:"incorrect_count"`
	BlankCount     int              `json:"blank_count"`
	MarkedCount    int              `json:"marked_count"`
	TimeTakenSec   int              `json:"time_taken_sec"`
	MaxScore       float64          `json:"max_score"`
	Score          float64          `json:"score"`
	Questions      []QuestionReport `json:"questions"`
}

type SubjectReport struct {
	SubjectID      string          `json:"subject_id"`
	Name           string          `json:"name"`
	CorrectCount   int             `json:"correct_count"`
	IncorrectCount int             `json:"incorrect_count"`
	BlankCount     int             `json:"blank_count"`
	MinScore       float64         `json:"min_score"`
	MaxScore       float64         `json:"max_score"`
	Score          float64         `json:"score"`
	Composite      bool            `json:"composite"`
	Sections       []SectionReport `json:"sections"`
}

type ScoreReport struct {
	TestID     string          `json:"test_id"`
	TestName   string          `json:"test_name"`
	StudentID  string          `json:"student_id"`
	TestDate   string          `json:"test_date"`
	TotalScore float64         `json:"total_score"`
	Subjects   []SubjectReport `json:"subjects"`
}

// BuildReport derives the nested score report from the ledger. Non-composite
// subjects sum their sections linearly; composite subjects resolve their two
// sections' raw correct counts through the registered CombinedScoreTable and
// report the fixed 200-800 band. Counts are recomputed from the assigned
// question lists; a slot with no ledger entry counts as incorrect, not blank.
func BuildReport(test catalog.Test, bps []catalog.Blueprint, sub Submission, res *Result, questions map[string]catalog.Question) (ScoreReport, error) {
	report := ScoreReport{
		TestID:    test.ID,
		TestName:  test.Name,
		StudentID: sub.StudentID,
		TestDate:  sub.AssignedAt.Format("2006-01-02"),
	}

	for _, bp := range bps {
		subject := SubjectReport{
			SubjectID: bp.SubjectID,
			Name:      bp.SubjectName,
			Composite: bp.Composite,
		}
		sectionCorrect := make([]int, 0, len(bp.SubSections))

		for _, ss := range bp.SubSections {
			ids := AssignedQuestions(test, sub, bp.SubjectID, ss)
			sr := buildSection(bp, ss, ids, res, questions)
			sectionCorrect = append(sectionCorrect, sr.CorrectCount)

			subject.CorrectCount += sr.CorrectCount
			subject.IncorrectCount += sr.IncorrectCount
			subject.BlankCount += sr.BlankCount
			subject.MaxScore += sr.MaxScore
			subject.MinScore -= float64(ss.QuestionCount) * bp.IncorrectMarks
			subject.Score += sr.Score
			subject.Sections = append(subject.Sections, sr)
		}

		if bp.Composite {
			table := CompositeTableFor(bp.SubjectName)
			if table == nil {
				return ScoreReport{}, fault.Validation("no combined score table registered for subject %s", bp.SubjectName)
			}
			var s1, s2 int
			if len(sectionCorrect) > 0 {
				s1 = sectionCorrect[0]
			}
			if len(sectionCorrect) > 1 {
				s2 = sectionCorrect[1]
			}
			score, err := table.Lookup(s1, s2)
			if err != nil {
				return ScoreReport{}, err
			}
			subject.Score = score
			subject.MinScore = CompositeMinScore
			subject.MaxScore = CompositeMaxScore
		}
		report.TotalScore += subject.Score
		report.Subjects = append(report.Subjects, subject)
	}
	return report, nil
}

func buildSection(bp catalog.Blueprint, ss catalog.SubSection, ids []string, res *Result, questions map[string]catalog.Question) SectionReport {
	sr := SectionReport{
		SectionID: ss.ID,
		Name:      ss.Name,
		MaxScore:  float64(ss.QuestionCount) * bp.CorrectMarks,
	}
	var sec *SectionRecord
	if res != nil {
		sec = res.Section(bp.SubjectID, ss.ID)
	}
	if sec != nil {
		sr.TimeTakenSec = sec.TimeTakenSec
	}

	for i, qid := range ids {
		var rec AnswerRecord
		if sec != nil {
			rec = sec.Questions[qid]
		}
		q := questions[qid]
		qr := QuestionReport{
			SrNo:              i + 1,
			QuestionID:        qid,
			Type:              q.Type,
			Topic:             topicOrGeneral(q.Topic),
			Correct:           rec.IsCorrect,
			TimeTakenSec:      rec.TimeTakenSec,
			FirstTimeTakenSec: rec.FirstTimeTakenSec,
			TimesVisited:      rec.TimesVisited,
			Marked:            rec.IsMarkedForReview,
			Skipped:           rec.IsSkipped,
			SelectedOptions:   rec.AnswerData,
		}
		if rec.IsCorrect {
			sr.CorrectCount++
		} else if !rec.IsSkipped {
			sr.IncorrectCount++
		}
		if rec.IsSkipped {
			sr.BlankCount++
		}
		if rec.IsMarkedForReview {
			sr.MarkedCount++
		}
		sr.Questions = append(sr.Questions, qr)
	}
	sr.Score = float64(sr.CorrectCount)*bp.CorrectMarks - float64(sr.IncorrectCount)*bp.IncorrectMarks
	return sr
}

func topicOrGeneral(t string) string {
	if t == "" {
		return "General"
	}
	return t
}

// AssignedQuestions resolves the question list a sub-section slot serves:
// the persisted per-student selection for dynamic tests, the curated list
// for linear ones. Empty means not yet selected.
func AssignedQuestions(test catalog.Test, sub Submission, subjectID string, ss catalog.SubSection) []string {
	if test.Format == catalog.FormatDynamic {
		return sub.Selected[SectionKey(subjectID, ss.ID)]
	}
	return ss.Questions
}
