package mode

import (
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TwentyFour deals four operands; players build an arithmetic expression
// evaluating to 24 using a subset of them. Submissions run through the safe
// evaluator in eval.go, never through dynamic code execution.
type TwentyFour struct{}

func (TwentyFour) Key() string { return KeyTwentyFour }

const twentyFourTolerance = 1e-4

type twentyFourQuestion struct {
	Numbers  []int
	Solution string
}

func (q *twentyFourQuestion) Payload() map[string]any {
	return map[string]any{"question": q.Numbers}
}

func (q *twentyFourQuestion) CorrectDisplay() any { return q.Solution + " = 24" }

// Generate searches for a deal matching the tier: easy wants at least five
// solutions including a very plain one, normal at least five solutions,
// hard few or only convoluted ones. Gives up after 2000 attempts and falls
// back to a classic hard deal.
func (TwentyFour) Generate(difficulty string) Question {
	maxNum := 13
	if difficulty == DifficultyEasy {
		maxNum = 9
	}

	var numbers []int
	var solutions []string

	for attempts := 0; attempts < 2000; attempts++ {
		numbers = make([]int, 4)
		for i := range numbers {
			numbers[i] = 1 + rand.Intn(maxNum)
		}

		solutions = solveTwentyFour(numbers)
		if len(solutions) == 0 {
			continue
		}

		minScore := solutionComplexity(solutions[0])
		for _, s := range solutions[1:] {
			if c := solutionComplexity(s); c < minScore {
				minScore = c
			}
		}

		switch difficulty {
		case DifficultyEasy:
			if minScore <= 2 && len(solutions) >= 5 {
				return buildTwentyFour(numbers, solutions)
			}
		case DifficultyHard:
			if minScore > 2 || len(solutions) < 5 {
				return buildTwentyFour(numbers, solutions)
			}
		default:
			if len(solutions) >= 5 {
				return buildTwentyFour(numbers, solutions)
			}
		}
	}

	if len(solutions) == 0 {
		return &twentyFourQuestion{Numbers: []int{3, 8, 3, 8}, Solution: "8 / (3 - 8/3)"}
	}
	return buildTwentyFour(numbers, solutions)
}

func buildTwentyFour(numbers []int, solutions []string) *twentyFourQuestion {
	sort.SliceStable(solutions, func(i, j int) bool {
		return solutionComplexity(solutions[i]) < solutionComplexity(solutions[j])
	})

	sample := solutions[0]
	if strings.HasPrefix(sample, "(") && strings.HasSuffix(sample, ")") {
		sample = sample[1 : len(sample)-1]
	}

	return &twentyFourQuestion{Numbers: numbers, Solution: sample}
}

// Score verifies each expression (whitelist, operand subset, value within
// tolerance of 24) and ranks correct solvers by response time.
func (TwentyFour) Score(round Round) Result {
	q := round.Question.(*twentyFourQuestion)

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
		if e.Submission != nil && twentyFourCorrect(e.Submission.Value, q.Numbers) {
			r.ranking.Answer = e.Submission.Value + " = 24"
			r.ranking.Diff = ptrTo(0.0)
			r.ranking.TimeMs = ptrTo(e.Submission.At.UnixMilli())
			r.fitness = elapsedMs(e.Submission, round.StartedAt)
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
		CorrectAnswer: q.CorrectDisplay(),
		Rankings:      rankings,
		IsTie:         topTie(fitness),
		Mode:          KeyTwentyFour,
	}
}

var exprWhitelist = regexp.MustCompile(`^[0-9+\-*/()\s]+$`)
var exprNumbers = regexp.MustCompile(`\d+`)

// twentyFourCorrect validates an expression against the dealt numbers:
// whitelisted characters only, operands a multiset subset of the deal, and
// a value within tolerance of 24.
func twentyFourCorrect(expression string, dealt []int) bool {
	if !exprWhitelist.MatchString(expression) {
		return false
	}

	used := exprNumbers.FindAllString(expression, -1)
	if len(used) == 0 {
		return false
	}

	remaining := append([]int(nil), dealt...)
	for _, tok := range used {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return false
		}
		idx := -1
		for i, d := range remaining {
			if d == n {
				idx = i
				break
			}
		}
		if idx == -1 {
			return false
		}
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	value, err := evalExpression(expression)
	if err != nil {
		return false
	}
	return math.Abs(value-24) < twentyFourTolerance
}

type exprItem struct {
	val  float64
	expr string
}

// solveTwentyFour enumerates expressions over the four numbers and returns
// the distinct ones evaluating to 24.
func solveTwentyFour(numbers []int) []string {
	items := make([]exprItem, len(numbers))
	for i, n := range numbers {
		items[i] = exprItem{val: float64(n), expr: strconv.Itoa(n)}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, s := range solveItems(items) {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func solveItems(items []exprItem) []string {
	if len(items) == 1 {
		if math.Abs(items[0].val-24) < 1e-6 {
			return []string{items[0].expr}
		}
		return nil
	}

	var solutions []string
	for i := range items {
		for j := range items {
			if i == j {
				continue
			}

			rest := make([]exprItem, 0, len(items)-1)
			for k := range items {
				if k != i && k != j {
					rest = append(rest, items[k])
				}
			}

			a, b := items[i], items[j]
			combos := []exprItem{
				{val: a.val + b.val, expr: fmt.Sprintf("(%s + %s)", a.expr, b.expr)},
				{val: a.val * b.val, expr: fmt.Sprintf("(%s * %s)", a.expr, b.expr)},
				{val: a.val - b.val, expr: fmt.Sprintf("(%s - %s)", a.expr, b.expr)},
			}
			if b.val != 0 {
				combos = append(combos, exprItem{val: a.val / b.val, expr: fmt.Sprintf("(%s / %s)", a.expr, b.expr)})
			}

			for _, c := range combos {
				solutions = append(solutions, solveItems(append(append([]exprItem(nil), rest...), c))...)
			}
		}
	}
	return solutions
}

// solutionComplexity scores how convoluted a solution reads: division
// weighs most, then multiplication, then parenthesis depth.
func solutionComplexity(expr string) float64 {
	return 3*float64(strings.Count(expr, "/")) +
		1*float64(strings.Count(expr, "*")) +
		0.5*float64(strings.Count(expr, "("))
}
