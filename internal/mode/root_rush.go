package mode

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// RootRush asks for the integer square root of a large number. Players are
// ranked by how close their estimate lands.
type RootRush struct{}

func (RootRush) Key() string { return KeyRootRush }

type rootRushQuestion struct {
	Number int
	Answer int
}

func (q *rootRushQuestion) Payload() map[string]any {
	return map[string]any{"question": q.Number}
}

func (q *rootRushQuestion) CorrectDisplay() any { return q.Answer }

// Generate picks a number whose magnitude scales with difficulty:
// easy 3 digits, normal 5-6 digits, hard 7-8 digits.
func (RootRush) Generate(difficulty string) Question {
	var min, max int
	switch difficulty {
	case DifficultyEasy:
		min, max = 100, 1000
	case DifficultyHard:
		min, max = 1_000_000, 100_000_000
	default:
		min, max = 10_000, 1_000_000
	}

	n := min + rand.Intn(max-min)
	return &rootRushQuestion{Number: n, Answer: isqrt(n)}
}

// Score ranks entrants by absolute distance from the true integer root.
func (RootRush) Score(round Round) Result {
	q := round.Question.(*rootRushQuestion)

	type row struct {
		ranking Ranking
		fitness float64
	}

	rows := make([]row, 0, len(round.Entrants))
	for _, e := range round.Entrants {
		r := row{
			ranking: Ranking{ID: e.ConnID, Name: e.Name},
			fitness: unranked(),
		}
		if e.Submission != nil {
			if guess, ok := parseLeadingInt(e.Submission.Value); ok {
				diff := math.Abs(float64(guess - q.Answer))
				r.ranking.Answer = guess
				r.ranking.Diff = ptrTo(diff)
				r.fitness = diff
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
		Mode:          KeyRootRush,
	}
}

// parseLeadingInt reads an optionally signed integer prefix, tolerating
// trailing garbage the way clients historically sent it ("300 ish").
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	n, err := strconv.Atoi(s[:j])
	if err != nil {
		return 0, false
	}
	return n, true
}

// isqrt returns floor(sqrt(n)) without float rounding drift near perfect
// squares.
func isqrt(n int) int {
	r := int(math.Sqrt(float64(n)))
	for (r+1)*(r+1) <= n {
		r++
	}
	for r*r > n {
		r--
	}
	return r
}
