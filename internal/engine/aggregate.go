package engine

import "github.com/pavelanni/examgen/internal/model"

// Scores is the outcome of aggregating a result's answers.
type Scores struct {
	Score      int `json:"score"`
	BonusScore int `json:"bonus_score"`
}

// Aggregate counts correct answers, keeping bonus answers apart.
func Aggregate(answers []model.Answer) Scores {
	var s Scores
	for _, a := range answers {
		if !a.IsCorrect {
			continue
		}
		if a.IsBonus {
			s.BonusScore++
		} else {
			s.Score++
		}
	}
	return s
}

// questionTotals counts standard and bonus questions.
func questionTotals(questions []model.Question) (total, bonus int) {
	for _, q := range questions {
		if q.IsBonus {
			bonus++
		} else {
			total++
		}
	}
	return total, bonus
}

// rescore overwrites the stored scores of r with a fresh aggregation.
func rescore(r *model.Result) {
	s := Aggregate(r.Answers)
	r.Score = s.Score
	r.BonusScore = s.BonusScore
}
