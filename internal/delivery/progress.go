package delivery

import "github.com/prepworks/prepworks-engine/internal/catalog"

// AnswerStatus is the client-facing view of one answered question inside a
// progress snapshot.
type AnswerStatus struct {
	SelectedOptions   []string `json:"selected_options"`
	IsMarkedForReview bool     `json:"is_marked_for_review"`
	IsAnswered        bool     `json:"is_answered"`
}

// Progress pinpoints where a student currently is in a submission so the
// client can resume: blueprint position, current question, remaining section
// time, and the answer map of the active sub-section.
type Progress struct {
	TestID           string                  `json:"test_id"`
	TestName         string                  `json:"test_name"`
	SubjectID        string                  `json:"subject_id"`
	SubjectIndex     int                     `json:"subject_index"`
	SectionID        string                  `json:"section_id"`
	SectionIndex     int                     `json:"section_index"`
	QuestionID       string                  `json:"question_id"`
	QuestionIndex    int                     `json:"question_index"`
	RemainingTimeSec int                     `json:"remaining_time_sec"`
	AnswerMap        map[string]AnswerStatus `json:"answer_map"`
	Exhausted        bool                    `json:"exhausted"`
}

// ResolveProgress walks subjects and sub-sections in blueprint order and
// returns the first position holding an unanswered question. A sub-section
// whose list is not yet populated (dynamic, not selected) is reported with
// its full time budget and no current question. A nil result means nothing
// has been answered: the very first position is returned. When every slot is
// answered, Exhausted is set and the caller infers completion from the
// submission status.
func ResolveProgress(test catalog.Test, bps []catalog.Blueprint, sub Submission, res *Result) Progress {
	p := Progress{
		TestID:    test.ID,
		TestName:  test.Name,
		AnswerMap: map[string]AnswerStatus{},
	}

	if res == nil {
		if len(bps) > 0 && len(bps[0].SubSections) > 0 {
			first := bps[0].SubSections[0]
			p.SubjectID = bps[0].SubjectID
			p.SectionID = first.ID
			p.RemainingTimeSec = first.TimeLimitMin * 60
			if ids := AssignedQuestions(test, sub, bps[0].SubjectID, first); len(ids) > 0 {
				p.QuestionID = ids[0]
			}
		}
		return p
	}

	for si, bp := range bps {
		for ci, ss := range bp.SubSections {
			ids := AssignedQuestions(test, sub, bp.SubjectID, ss)
			p.SubjectID = bp.SubjectID
			p.SubjectIndex = si
			p.SectionID = ss.ID
			p.SectionIndex = ci

			if len(ids) == 0 {
				// Dynamic slot not selected yet: full budget, no question.
				p.QuestionID = ""
				p.QuestionIndex = 0
				p.RemainingTimeSec = ss.TimeLimitMin * 60
				p.AnswerMap = map[string]AnswerStatus{}
				return p
			}

			sec := res.Section(bp.SubjectID, ss.ID)
			answerMap := map[string]AnswerStatus{}
			if sec != nil {
				for _, qid := range ids {
					rec, ok := sec.Questions[qid]
					if !ok {
						continue
					}
					st := AnswerStatus{
						IsMarkedForReview: rec.IsMarkedForReview,
						IsAnswered:        !rec.IsSkipped,
					}
					if !rec.IsSkipped {
						st.SelectedOptions = rec.AnswerData
					}
					answerMap[qid] = st
				}
			}

			for qi, qid := range ids {
				if sec != nil {
					if _, ok := sec.Questions[qid]; ok {
						continue
					}
				}
				spent := 0
				if sec != nil {
					spent = sec.TimeTakenSec
				}
				p.QuestionID = qid
				p.QuestionIndex = qi
				p.RemainingTimeSec = ss.TimeLimitMin*60 - spent
				p.AnswerMap = answerMap
				return p
			}
		}
	}

	p.Exhausted = true
	return p
}
