package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/delivery"
)

func PutQuestionHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q catalog.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if q.ID == "" || q.SubjectID == "" {
			http.Error(w, "id and subject_id required", 400)
			return
		}
		if err := cat.PutQuestion(r.Context(), q); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": q.ID})
	}
}

func GetQuestionHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := cat.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(q)
	}
}

func CreateTestHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Test       catalog.Test        `json:"test"`
			Blueprints []catalog.Blueprint `json:"blueprints"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if err := cat.CreateTest(r.Context(), req.Test, req.Blueprints); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": req.Test.ID})
	}
}

func GetTestHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "testID")
		t, err := cat.GetTest(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		bps, err := cat.BlueprintsForTest(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"test": t, "blueprints": bps})
	}
}

// SetLinearQuestionsHandler replaces a linear sub-section's curated list.
func SetLinearQuestionsHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		var req struct {
			SubjectID   string   `json:"subject_id"`
			SectionID   string   `json:"section_id"`
			QuestionIDs []string `json:"question_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if err := cat.SetLinearQuestions(r.Context(), testID, req.SubjectID, req.SectionID, req.QuestionIDs); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func PutSubjectHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s catalog.Subject
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if s.ID == "" || s.Name == "" {
			http.Error(w, "id and name required", 400)
			return
		}
		if err := cat.PutSubject(r.Context(), s); err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": s.ID})
	}
}

// PutCombinedScoresHandler loads composite-score table rows and refreshes
// the in-process registry so lookups see them immediately.
func PutCombinedScoresHandler(cat *catalog.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []catalog.CombinedScoreRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		for _, row := range rows {
			if err := cat.PutCombinedScore(r.Context(), row); err != nil {
				writeErr(w, err)
				return
			}
		}
		all, err := cat.CombinedScores(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		delivery.LoadCompositeTables(all)
		_ = json.NewEncoder(w).Encode(map[string]int{"loaded": len(rows)})
	}
}

func AssignTestHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TestID     string   `json:"test_id"`
			StudentIDs []string `json:"student_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.TestID == "" || len(req.StudentIDs) == 0 {
			http.Error(w, "test_id and student_ids required", 400)
			return
		}
		subs, err := svc.AssignTest(r.Context(), req.TestID, req.StudentIDs)
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(subs)
	}
}

func ReassignHandler(svc *delivery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.Reassign(r.Context(), chi.URLParam(r, "submissionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(sub)
	}
}
