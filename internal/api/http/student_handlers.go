package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepworks/prepworks-engine/internal/delivery"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), fault.HTTPStatus(err))
}

func TakeTestHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "submissionID")
		var req struct {
			SubjectID         string   `json:"subject_id"`
			SectionID         string   `json:"section_id"`
			QuestionID        string   `json:"question_id"`
			AnswerData        []string `json:"answer_data"`
			TimeTakenSec      int      `json:"time_taken_sec"`
			IsSkipped         bool     `json:"is_skipped"`
			IsMarkedForReview bool     `json:"is_marked_for_review"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		totals, err := svc.TakeTest(r.Context(), id, delivery.AnswerInput{
			SubjectID:         req.SubjectID,
			SectionID:         req.SectionID,
			QuestionID:        req.QuestionID,
			AnswerData:        req.AnswerData,
			TimeTakenSec:      req.TimeTakenSec,
			IsSkipped:         req.IsSkipped,
			IsMarkedForReview: req.IsMarkedForReview,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(totals)
	}
}

func SkipSectionHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "submissionID")
		var req struct {
			SubjectID string `json:"subject_id"`
			SectionID string `json:"section_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		totals, err := svc.SkipSection(r.Context(), id, req.SubjectID, req.SectionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(totals)
	}
}

func SectionQuestionsHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "submissionID")
		subjectID := r.URL.Query().Get("subject_id")
		sectionID := r.URL.Query().Get("section_id")
		if subjectID == "" || sectionID == "" {
			http.Error(w, "subject_id and section_id required", 400)
			return
		}
		ids, err := svc.SectionQuestions(r.Context(), id, subjectID, sectionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"question_ids": ids})
	}
}

func ProgressHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "submissionID")
		p, err := svc.Progress(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	}
}

func ReportHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "submissionID")
		rep, err := svc.Report(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(rep)
	}
}

func StartPracticeHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StudentID    string   `json:"student_id"`
			SubjectID    string   `json:"subject_id"`
			Topics       []string `json:"topics"`
			Difficulties []string `json:"difficulties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		p, ids, err := svc.StartPractice(r.Context(), req.StudentID, req.SubjectID, req.Topics, req.Difficulties)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"practice": p, "question_ids": ids})
	}
}

func TakePracticeHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "practiceID")
		var req struct {
			QuestionID        string   `json:"question_id"`
			AnswerData        []string `json:"answer_data"`
			TimeTakenSec      int      `json:"time_taken_sec"`
			IsSkipped         bool     `json:"is_skipped"`
			IsMarkedForReview bool     `json:"is_marked_for_review"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		totals, err := svc.TakePractice(r.Context(), id, req.QuestionID, req.AnswerData,
			req.TimeTakenSec, req.IsSkipped, req.IsMarkedForReview)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(totals)
	}
}

func PracticeReportHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "practiceID")
		rep, err := svc.PracticeReport(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(rep)
	}
}
