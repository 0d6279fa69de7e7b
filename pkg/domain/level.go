package domain

import dErrors "gradenorm/pkg/domain-errors"

// LevelStage marks an academic year/grade. Equivalence comparisons are scoped
// to a level stage: "Algebra" in Grade 10 is not interchangeable with
// "Algebra" in 1st Year Undergraduate.
type LevelStage int

// The supported ladder runs from primary school through doctoral studies,
// matching the South African NQF-aligned progression the product launched with.
const (
	LevelStageMin LevelStage = 1
	LevelStageMax LevelStage = 25
)

var levelStageLabels = map[LevelStage]string{
	1:  "Grade 1 (Primary School)",
	2:  "Grade 2 (Primary School)",
	3:  "Grade 3 (Primary School)",
	4:  "Grade 4 (Primary School)",
	5:  "Grade 5 (Primary School)",
	6:  "Grade 6 (Primary School)",
	7:  "Grade 7 (Primary School)",
	8:  "Grade 8 (Secondary School)",
	9:  "Grade 9 (Secondary School)",
	10: "Grade 10 (Secondary School)",
	11: "Grade 11 (Secondary School)",
	12: "Grade 12 (Matric - National Senior Certificate)",
	13: "N1 (TVET College)",
	14: "N2 (TVET College)",
	15: "N3 (TVET College)",
	16: "N4 (TVET College)",
	17: "N5 (TVET College)",
	18: "N6 (TVET College)",
	19: "1st Year Undergraduate",
	20: "2nd Year Undergraduate",
	21: "3rd Year Undergraduate",
	22: "4th Year Undergraduate",
	23: "Honours Degree",
	24: "Master's Degree",
	25: "Doctoral Degree (PhD)",
}

// ParseLevelStage validates a level stage number.
func ParseLevelStage(n int) (LevelStage, error) {
	ls := LevelStage(n)
	if ls < LevelStageMin || ls > LevelStageMax {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput,
			"level stage %d outside supported range %d..%d", n, LevelStageMin, LevelStageMax)
	}
	return ls, nil
}

// Label returns the human-readable description of the stage, or "" when the
// stage is out of range.
func (l LevelStage) Label() string { return levelStageLabels[l] }

func (l LevelStage) Int() int { return int(l) }
