package delivery

import "github.com/prepworks/prepworks-engine/internal/fault"

// AnswerInput is one take-test event for a single question.
type AnswerInput struct {
	SubjectID         string
	SectionID         string
	QuestionID        string
	AnswerData        []string
	TimeTakenSec      int
	IsSkipped         bool
	IsMarkedForReview bool
}

// Record merges one answer event into the ledger. Re-answering adjusts the
// correct/incorrect counters by the delta between the previous and the new
// verdict, never by blind increment; skips land in the ledger but move
// neither counter. Timing accrues at the question, section and result level.
func (r *Result) Record(in AnswerInput, isCorrect bool) error {
	sec := r.Section(in.SubjectID, in.SectionID)
	if sec == nil {
		return fault.NotFound("section %s/%s not part of this test", in.SubjectID, in.SectionID)
	}

	prev, answered := sec.Questions[in.QuestionID]

	rec := AnswerRecord{
		AnswerData:        in.AnswerData,
		IsSkipped:         in.IsSkipped,
		IsCorrect:         isCorrect,
		IsMarkedForReview: in.IsMarkedForReview,
		FirstTimeTakenSec: in.TimeTakenSec,
		TimeTakenSec:      in.TimeTakenSec,
		TimesVisited:      1,
	}
	if in.IsSkipped {
		rec.AnswerData = []string{}
	}
	if answered {
		rec.FirstTimeTakenSec = prev.FirstTimeTakenSec
		rec.TimeTakenSec = prev.TimeTakenSec + in.TimeTakenSec
		rec.TimesVisited = prev.TimesVisited + 1
	}
	sec.Questions[in.QuestionID] = rec
	sec.TimeTakenSec += in.TimeTakenSec
	r.TimeTakenSec += in.TimeTakenSec

	switch {
	case answered && !in.IsSkipped:
		if prev.IsCorrect && !isCorrect {
			r.CorrectCount--
			r.IncorrectCount++
		} else if !prev.IsCorrect && isCorrect {
			r.CorrectCount++
			r.IncorrectCount--
		}
	case !answered && !in.IsSkipped:
		if isCorrect {
			r.CorrectCount++
		} else {
			r.IncorrectCount++
		}
	}
	return nil
}

// SkipUnanswered inserts a synthetic skipped record for every question in
// the list that has no ledger entry yet, counting each as incorrect. These
// are first-time entries by construction, so the delta-merge path does not
// apply. Returns how many records were inserted; zero means a no-op.
func (r *Result) SkipUnanswered(subjectID, sectionID string, questionIDs []string) (int, error) {
	sec := r.Section(subjectID, sectionID)
	if sec == nil {
		return 0, fault.NotFound("section %s/%s not part of this test", subjectID, sectionID)
	}
	added := 0
	for _, qid := range questionIDs {
		if _, ok := sec.Questions[qid]; ok {
			continue
		}
		sec.Questions[qid] = AnswerRecord{
			AnswerData:   []string{},
			IsSkipped:    true,
			TimesVisited: 1,
		}
		r.IncorrectCount++
		added++
	}
	return added, nil
}

// RecordPractice merges one answer event into a flat practice ledger; same
// delta-merge semantics as Record, without sections.
func (pr *PracticeResult) RecordPractice(questionID string, answer []string, timeTakenSec int, isCorrect, isSkipped, marked bool) {
	if pr.Answers == nil {
		pr.Answers = map[string]AnswerRecord{}
	}
	prev, answered := pr.Answers[questionID]

	rec := AnswerRecord{
		AnswerData:        answer,
		IsSkipped:         isSkipped,
		IsCorrect:         isCorrect,
		IsMarkedForReview: marked,
		FirstTimeTakenSec: timeTakenSec,
		TimeTakenSec:      timeTakenSec,
		TimesVisited:      1,
	}
	if isSkipped {
		rec.AnswerData = []string{}
	}
	if answered {
		rec.FirstTimeTakenSec = prev.FirstTimeTakenSec
		rec.TimeTakenSec = prev.TimeTakenSec + timeTakenSec
		rec.TimesVisited = prev.TimesVisited + 1
	}
	pr.Answers[questionID] = rec
	pr.TimeTakenSec += timeTakenSec

	switch {
	case answered && !isSkipped:
		if prev.IsCorrect && !isCorrect {
			pr.CorrectCount--
			pr.IncorrectCount++
		} else if !prev.IsCorrect && isCorrect {
			pr.CorrectCount++
			pr.IncorrectCount--
		}
	case !answered && !isSkipped:
		if isCorrect {
			pr.CorrectCount++
		} else {
			pr.IncorrectCount++
		}
	}
}
