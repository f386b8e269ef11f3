package mode

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
)

// BinaryBlitz asks for the base-2 representation of a decimal number.
// The comparison is an exact string match; speed breaks ties.
type BinaryBlitz struct{}

func (BinaryBlitz) Key() string { return KeyBinaryBlitz }

type binaryBlitzQuestion struct {
	Number int
	Answer string
}

func (q *binaryBlitzQuestion) Payload() map[string]any {
	return map[string]any{"question": q.Number}
}

func (q *binaryBlitzQuestion) CorrectDisplay() any { return q.Answer }

// Generate picks a number of up to 5 bits (easy), 8 bits (normal), or
// 12 bits (hard).
func (BinaryBlitz) Generate(difficulty string) Question {
	var max int
	switch difficulty {
	case DifficultyEasy:
		max = 32
	case DifficultyHard:
		max = 4096
	default:
		max = 256
	}

	n := rand.Intn(max)
	return &binaryBlitzQuestion{Number: n, Answer: strconv.FormatInt(int64(n), 2)}
}

// Score puts exact matches first ordered by response time; everyone else
// sorts last in join order.
func (BinaryBlitz) Score(round Round) Result {
	q := round.Question.(*binaryBlitzQuestion)

	type row struct {
		ranking Ranking
		fitness float64
	}

	rows := make([]row, 0, len(round.Entrants))
	for _, e := range round.Entrants {
		r := row{
			ranking: Ranking{ID: e.ConnID, Name: e.Name, Correct: ptrTo(false)},
			fitness: unranked(),
		}
		if e.Submission != nil {
			r.ranking.Answer = e.Submission.Value
			if e.Submission.Value == q.Answer {
				r.ranking.Correct = ptrTo(true)
				r.ranking.TimeMs = ptrTo(e.Submission.At.UnixMilli())
				r.fitness = elapsedMs(e.Submission, round.StartedAt)
			}
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].fitness < rows[j].fitness })

	fitness := make([]float64, len(rows))
	for i := range rows {
		fitness[i] = rows[i].fitness
	}
	awards := assignAwards(fitness)

	rankings := make([]Ranking, len(rows))
	for i := range rows {
		rows[i].ranking.Awarded = awards[i]
		rankings[i] = rows[i].ranking
	}

	winner := "No one"
	if len(rows) > 0 && !math.IsInf(rows[0].fitness, 1) {
		winner = rows[0].ranking.Name
	}

	return Result{
		Winner:        winner,
		CorrectAnswer: q.Answer,
		Rankings:      rankings,
		IsTie:         topTie(fitness),
		Mode:          KeyBinaryBlitz,
	}
}
