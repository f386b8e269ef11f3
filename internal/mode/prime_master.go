package mode

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// PrimeMaster shows four options of which exactly one is prime. Correct
// picks are ranked by response time.
type PrimeMaster struct{}

func (PrimeMaster) Key() string { return KeyPrimeMaster }

type primeMasterQuestion struct {
	Options []int
	Prime   int
}

func (q *primeMasterQuestion) Payload() map[string]any {
	return map[string]any{"options": q.Options}
}

func (q *primeMasterQuestion) CorrectDisplay() any { return q.Prime }

// Generate draws one prime and three distinct composites from the tier's
// range and shuffles them.
func (PrimeMaster) Generate(difficulty string) Question {
	var min, max int
	switch difficulty {
	case DifficultyEasy:
		min, max = 10, 99
	case DifficultyHard:
		min, max = 200, 999
	default:
		min, max = 100, 500
	}

	prime := randomPrime(min, max)
	composites := randomComposites(min, max, 3, prime)

	options := append([]int{prime}, composites...)
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return &primeMasterQuestion{Options: options, Prime: prime}
}

// Score ranks correct picks by elapsed response time; wrong or missing
// picks sort last in join order.
func (PrimeMaster) Score(round Round) Result {
	q := round.Question.(*primeMasterQuestion)

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
			if pick, err := strconv.Atoi(strings.TrimSpace(e.Submission.Value)); err == nil {
				r.ranking.Answer = pick
				if pick == q.Prime {
					r.ranking.Correct = ptrTo(true)
					r.ranking.TimeMs = ptrTo(e.Submission.At.UnixMilli())
					r.fitness = elapsedMs(e.Submission, round.StartedAt)
				}
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
		CorrectAnswer: q.Prime,
		Rankings:      rankings,
		IsTie:         topTie(fitness),
		Mode:          KeyPrimeMaster,
	}
}

func isPrime(n int) bool {
	if n <= 1 {
		return false
	}
	if n <= 3 {
		return true
	}
	if n%2 == 0 || n%3 == 0 {
		return false
	}
	for i := 5; i*i <= n; i += 6 {
		if n%i == 0 || n%(i+2) == 0 {
			return false
		}
	}
	return true
}

func randomPrime(min, max int) int {
	for {
		n := min + rand.Intn(max-min+1)
		if isPrime(n) {
			return n
		}
	}
}

func randomComposites(min, max, count, exclude int) []int {
	composites := make([]int, 0, count)
	for len(composites) < count {
		n := min + rand.Intn(max-min+1)
		if isPrime(n) || n == exclude || containsInt(composites, n) {
			continue
		}
		composites = append(composites, n)
	}
	return composites
}

func containsInt(xs []int, n int) bool {
	for _, x := range xs {
		if x == n {
			return true
		}
	}
	return false
}
