package delivery

import (
	"context"

	"github.com/google/uuid"

	"github.com/prepworks/prepworks-engine/internal/fault"
)

// PracticeScore is the flat report of a self-practice session.
type PracticeScore struct {
	PracticeID     string           `json:"practice_id"`
	SubjectID      string           `json:"subject_id"`
	SubjectName    string           `json:"subject_name"`
	Date           string           `json:"date"`
	CorrectCount   int              `json:"correct_count"`
	IncorrectCount int              `json:"incorrect_count"`
	BlankCount     int              `json:"blank_count"`
	MarkedCount    int              `json:"marked_count"`
	TimeTakenSec   int              `json:"time_taken_sec"`
	MaxScore       float64          `json:"max_score"`
	Score          float64          `json:"score"`
	Questions      []QuestionReport `json:"questions"`
}

// StartPractice opens a practice session over the subject's self-practice
// pool, optionally narrowed by topic and difficulty, and returns the
// question IDs in shuffled delivery order. Practice never touches the
// served-question ledger: repeats across sessions are allowed.
func (s *Service) StartPractice(ctx context.Context, studentID, subjectID string, topics, difficulties []string) (Practice, []string, error) {
	if studentID == "" || subjectID == "" {
		return Practice{}, nil, fault.Validation("student id and subject id are required")
	}
	if _, err := s.cat.GetSubject(ctx, subjectID); err != nil {
		return Practice{}, nil, err
	}
	ids, err := s.cat.PracticeQuestionIDs(ctx, subjectID, topics, difficulties)
	if err != nil {
		return Practice{}, nil, err
	}
	s.selector.Shuffle(ids)

	p := Practice{
		ID:        uuid.NewString(),
		StudentID: studentID,
		SubjectID: subjectID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreatePractice(ctx, p); err != nil {
		return Practice{}, nil, err
	}
	return p, ids, nil
}

// TakePractice records one practice answer with the same delta-merge
// semantics as TakeTest, into the session's flat ledger.
func (s *Service) TakePractice(ctx context.Context, practiceID, questionID string, answer []string, timeTakenSec int, skipped, marked bool) (Totals, error) {
	p, err := s.store.GetPractice(ctx, practiceID)
	if err != nil {
		return Totals{}, err
	}
	q, err := s.cat.GetQuestion(ctx, questionID)
	if err != nil {
		return Totals{}, err
	}
	verdict := Evaluate(q, answer, skipped)

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		pr, err := s.store.GetPracticeResult(ctx, p.ID)
		if err != nil {
			return Totals{}, err
		}
		if pr == nil {
			pr = &PracticeResult{PracticeID: p.ID, Answers: map[string]AnswerRecord{}}
		}
		pr.RecordPractice(questionID, answer, timeTakenSec, verdict, skipped, marked)
		if err := s.store.SavePracticeResult(ctx, pr); err != nil {
			if fault.IsConflict(err) {
				lastErr = err
				continue
			}
			return Totals{}, err
		}
		return Totals{
			CorrectCount:   pr.CorrectCount,
			IncorrectCount: pr.IncorrectCount,
			TimeTakenSec:   pr.TimeTakenSec,
		}, nil
	}
	return Totals{}, lastErr
}

// PracticeReport summarizes a practice session using the subject's live
// marks configuration.
func (s *Service) PracticeReport(ctx context.Context, practiceID string) (PracticeScore, error) {
	p, err := s.store.GetPractice(ctx, practiceID)
	if err != nil {
		return PracticeScore{}, err
	}
	subj, err := s.cat.GetSubject(ctx, p.SubjectID)
	if err != nil {
		return PracticeScore{}, err
	}
	pr, err := s.store.GetPracticeResult(ctx, practiceID)
	if err != nil {
		return PracticeScore{}, err
	}
	if pr == nil {
		return PracticeScore{}, fault.NotFound("no results recorded for this practice session")
	}

	ids := make([]string, 0, len(pr.Answers))
	for qid := range pr.Answers {
		ids = append(ids, qid)
	}
	questions, err := s.cat.QuestionsByIDs(ctx, ids)
	if err != nil {
		return PracticeScore{}, err
	}

	score := PracticeScore{
		PracticeID:   p.ID,
		SubjectID:    p.SubjectID,
		SubjectName:  subj.Name,
		Date:         p.CreatedAt.Format("2006-01-02"),
		TimeTakenSec: pr.TimeTakenSec,
	}
	i := 0
	for qid, rec := range pr.Answers {
		i++
		q := questions[qid]
		score.Questions = append(score.Questions, QuestionReport{
			SrNo:              i,
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
		})
		if rec.IsCorrect {
			score.CorrectCount++
		} else if !rec.IsSkipped {
			score.IncorrectCount++
		}
		if rec.IsSkipped {
			score.BlankCount++
		}
		if rec.IsMarkedForReview {
			score.MarkedCount++
		}
	}
	score.MaxScore = float64(len(pr.Answers)) * subj.CorrectMarks
	score.Score = float64(score.CorrectCount)*subj.CorrectMarks - float64(score.IncorrectCount)*subj.IncorrectMarks
	return score, nil
}
