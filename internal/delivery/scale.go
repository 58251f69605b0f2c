package delivery

import (
	"github.com/prepworks/prepworks-engine/internal/catalog"
	"github.com/prepworks/prepworks-engine/internal/fault"
)

// CompositeBand is the fixed score band every composite subject reports
// against, regardless of question counts.
const (
	CompositeMinScore = 200.0
	CompositeMaxScore = 800.0
)

type compositeKey struct{ s1, s2 int }

// CompositeTable maps (section1 correct, section2 correct) to an
// externally-defined scaled score. A missing pair is a hard failure, not a
// zero: it means the seeded table does not cover a reachable combination.
type CompositeTable struct {
	subject string
	rows    map[compositeKey]float64
}

func NewCompositeTable(subject string) *CompositeTable {
	return &CompositeTable{subject: subject, rows: map[compositeKey]float64{}}
}

func (t *CompositeTable) Put(s1, s2 int, total float64) {
	t.rows[compositeKey{s1, s2}] = total
}

func (t *CompositeTable) Lookup(s1, s2 int) (float64, error) {
	v, ok := t.rows[compositeKey{s1, s2}]
	if !ok {
		return 0, fault.Validation("no combined score for subject %s with correct counts (%d, %d)", t.subject, s1, s2)
	}
	return v, nil
}

// ---- Registry ----

var compositeTables = map[string]*CompositeTable{}

// RegisterCompositeTable binds a table to a subject name. Typically called
// once at startup after loading the seeded rows.
func RegisterCompositeTable(subject string, t *CompositeTable) {
	if subject == "" || t == nil {
		return
	}
	compositeTables[subject] = t
}

// CompositeTableFor fetches the table for a subject, or nil when the subject
// is not composite-scored.
func CompositeTableFor(subject string) *CompositeTable {
	return compositeTables[subject]
}

// LoadCompositeTables builds and registers tables from seeded catalog rows.
func LoadCompositeTables(rows []catalog.CombinedScoreRow) {
	bySubject := map[string]*CompositeTable{}
	for _, r := range rows {
		t, ok := bySubject[r.SubjectName]
		if !ok {
			t = NewCompositeTable(r.SubjectName)
			bySubject[r.SubjectName] = t
		}
		t.Put(r.Section1Correct, r.Section2Correct, r.TotalScore)
	}
	for name, t := range bySubject {
		RegisterCompositeTable(name, t)
	}
}
