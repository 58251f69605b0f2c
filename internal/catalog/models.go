package catalog

// Difficulty tiers used by the adaptive selector.
type Difficulty string

const (
	VeryEasy Difficulty = "VERY_EASY"
	Easy     Difficulty = "EASY"
	Moderate Difficulty = "MODERATE"
	Hard     Difficulty = "HARD"
	VeryHard Difficulty = "VERY_HARD"
)

// Tiers is the canonical tier order, easiest first.
var Tiers = []Difficulty{VeryEasy, Easy, Moderate, Hard, VeryHard}

// Question types. Reading comprehension grades like a choice question; the
// passage is presentation-only.
const (
	TypeSingleChoice = "SINGLE_CHOICE"
	TypeMultiChoice  = "MULTI_CHOICE"
	TypeReadingComp  = "READING_COMPREHENSION"
	TypeFillInBlanks = "FILL_IN_BLANKS"
)

// Question pools keep full-length test content separate from self-practice.
const (
	FullLengthPool   = "FULL_LENGTH"
	SelfPracticePool = "SELF_PRACTICE"
)

type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is an immutable bank record. For choice types the answer key is
// the set of options flagged is_correct; for fill-in-blanks it is Answers.
type Question struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	Type       string     `json:"type"`
	Pool       string     `json:"pool"` // FULL_LENGTH | SELF_PRACTICE
	Difficulty Difficulty `json:"difficulty"`
	Topic      string     `json:"topic,omitempty"`
	PromptHTML string     `json:"prompt_html,omitempty"`
	Options    []Option   `json:"options,omitempty"`
	Answers    []string   `json:"answers,omitempty"` // fill-in-blanks key
}

// PoolEntry is the minimal view the selector needs.
type PoolEntry struct {
	ID         string
	Difficulty Difficulty
}

// Test formats.
type Format string

const (
	FormatLinear  Format = "LINEAR"
	FormatDynamic Format = "DYNAMIC"
)

type Test struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	Name      string `json:"name"`
	Format    Format `json:"format"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// SubSection is the smallest timed unit of a subject. Questions holds the
// administrator-curated list for linear tests; dynamic tests leave it empty
// and select per student.
type SubSection struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	QuestionCount int      `json:"question_count"`
	TimeLimitMin  int      `json:"time_limit_min"`
	Questions     []string `json:"questions,omitempty"`
}

// Blueprint is the static per-(test, subject) definition. Composite marks a
// subject whose two sections resolve through a combined-score table instead
// of a linear mark sum.
type Blueprint struct {
	TestID         string       `json:"test_id"`
	SubjectID      string       `json:"subject_id"`
	SubjectName    string       `json:"subject_name"`
	Order          int          `json:"order"`
	CorrectMarks   float64      `json:"correct_marks"`
	IncorrectMarks float64      `json:"incorrect_marks"`
	Composite      bool         `json:"composite"`
	SubSections    []SubSection `json:"sub_sections"`
}

// QuestionsRequired is the bank size a subject needs to host one full
// dynamic attempt.
func (b Blueprint) QuestionsRequired() int {
	total := 0
	for _, ss := range b.SubSections {
		total += ss.QuestionCount
	}
	return total
}

// SubSectionByID returns the sub-section and true when present.
func (b Blueprint) SubSectionByID(id string) (SubSection, bool) {
	for _, ss := range b.SubSections {
		if ss.ID == id {
			return ss, true
		}
	}
	return SubSection{}, false
}

// Subject is a course subject's scoring configuration; blueprints copy the
// marks at test-instantiation time, practice sessions read them live.
type Subject struct {
	ID             string  `json:"id"`
	CourseID       string  `json:"course_id"`
	Name           string  `json:"name"`
	CorrectMarks   float64 `json:"correct_marks"`
	IncorrectMarks float64 `json:"incorrect_marks"`
	Composite      bool    `json:"composite"`
}

// CombinedScoreRow is one cell of a composite-score lookup table.
type CombinedScoreRow struct {
	SubjectName     string  `json:"subject_name"`
	Section1Correct int     `json:"section1_correct"`
	Section2Correct int     `json:"section2_correct"`
	TotalScore      float64 `json:"total_score"`
}
