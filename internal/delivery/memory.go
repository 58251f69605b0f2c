package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prepworks/prepworks-engine/internal/fault"
)

// memoryStore keeps everything in maps. Used by tests and offline demos;
// honors the same version-check semantics as the SQL store.
type memoryStore struct {
	mu          sync.Mutex
	submissions map[string]Submission
	results     map[string]*Result
	served      map[string][]string // studentID|subjectID -> question IDs
	practices   map[string]Practice
	pracResults map[string]*PracticeResult
}

func NewInMemoryStore() Store {
	return &memoryStore{
		submissions: map[string]Submission{},
		results:     map[string]*Result{},
		served:      map[string][]string{},
		practices:   map[string]Practice{},
		pracResults: map[string]*PracticeResult{},
	}
}

func servedKey(studentID, subjectID string) string { return studentID + "|" + subjectID }

func (m *memoryStore) CreateSubmissions(_ context.Context, subs []Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subs {
		s.Version = 1
		m.submissions[s.ID] = cloneSubmission(s)
	}
	return nil
}

func (m *memoryStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, fault.NotFound("submission not found")
	}
	return cloneSubmission(s), nil
}

func (m *memoryStore) GetResult(_ context.Context, submissionID string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[submissionID]
	if !ok {
		return nil, nil
	}
	return cloneResult(r), nil
}

func (m *memoryStore) SaveAttempt(_ context.Context, sub Submission, res *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSubmission(sub); err != nil {
		return err
	}
	if res != nil {
		cur, exists := m.results[res.SubmissionID]
		if res.Version == 0 && exists {
			return fault.Conflict("result created concurrently for submission %s", res.SubmissionID)
		}
		if res.Version != 0 && (!exists || cur.Version != res.Version) {
			return fault.Conflict("stale result write for submission %s", res.SubmissionID)
		}
		cp := cloneResult(res)
		cp.Version = res.Version + 1
		m.results[res.SubmissionID] = cp
	}
	sub.Version++
	m.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (m *memoryStore) UpdateSubmission(_ context.Context, sub Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSubmission(sub); err != nil {
		return err
	}
	sub.Version++
	m.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (m *memoryStore) checkSubmission(sub Submission) error {
	cur, ok := m.submissions[sub.ID]
	if !ok {
		return fault.NotFound("submission not found")
	}
	if cur.Version != sub.Version {
		return fault.Conflict("stale submission write for %s", sub.ID)
	}
	return nil
}

func (m *memoryStore) DeleteResult(_ context.Context, submissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.results, submissionID)
	return nil
}

func (m *memoryStore) PersistSelection(_ context.Context, submissionID, subjectID, sectionKey string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return nil, fault.NotFound("submission not found")
	}
	if existing, ok := sub.Selected[sectionKey]; ok && len(existing) > 0 {
		return append([]string(nil), existing...), nil
	}
	if sub.Selected == nil {
		sub.Selected = map[string][]string{}
	}
	sub.Selected[sectionKey] = append([]string(nil), ids...)
	sub.Version++
	m.submissions[submissionID] = sub

	k := servedKey(sub.StudentID, subjectID)
	m.served[k] = append(m.served[k], ids...)
	return append([]string(nil), ids...), nil
}

func (m *memoryStore) ServedQuestions(_ context.Context, studentID, subjectID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.served[servedKey(studentID, subjectID)]...), nil
}

func (m *memoryStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.submissions {
		if (s.Status == StatusNotStarted || s.Status == StatusInProgress) && now.After(s.ExpiresAt) {
			s.Status = StatusExpired
			s.Version++
			m.submissions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) CreatePractice(_ context.Context, p Practice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.practices[p.ID] = p
	return nil
}

func (m *memoryStore) GetPractice(_ context.Context, id string) (Practice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.practices[id]
	if !ok {
		return Practice{}, fault.NotFound("practice session not found")
	}
	return p, nil
}

func (m *memoryStore) GetPracticeResult(_ context.Context, practiceID string) (*PracticeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.pracResults[practiceID]
	if !ok {
		return nil, nil
	}
	cp := *pr
	cp.Answers = make(map[string]AnswerRecord, len(pr.Answers))
	for k, v := range pr.Answers {
		cp.Answers[k] = v
	}
	return &cp, nil
}

func (m *memoryStore) SavePracticeResult(_ context.Context, pr *PracticeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.pracResults[pr.PracticeID]
	if pr.Version == 0 && exists {
		return fault.Conflict("practice result created concurrently")
	}
	if pr.Version != 0 && (!exists || cur.Version != pr.Version) {
		return fault.Conflict("stale practice result write")
	}
	cp := *pr
	cp.Version = pr.Version + 1
	cp.Answers = make(map[string]AnswerRecord, len(pr.Answers))
	for k, v := range pr.Answers {
		cp.Answers[k] = v
	}
	m.pracResults[pr.PracticeID] = &cp
	return nil
}

// Deep copies keep callers from mutating shared state outside SaveAttempt.

func cloneSubmission(s Submission) Submission {
	cp := s
	if s.Selected != nil {
		cp.Selected = make(map[string][]string, len(s.Selected))
		for k, v := range s.Selected {
			cp.Selected[k] = append([]string(nil), v...)
		}
	}
	return cp
}

func cloneResult(r *Result) *Result {
	buf, _ := json.Marshal(r)
	var cp Result
	_ = json.Unmarshal(buf, &cp)
	cp.Version = r.Version
	return &cp
}
