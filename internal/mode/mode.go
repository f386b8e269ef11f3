package mode

import (
	"math"
	"time"
)

// Difficulty tiers shared by all modes.
const (
	DifficultyEasy   = "easy"
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
)

// Mode key constants.
const (
	KeyRootRush    = "root_rush"
	KeyPrimeMaster = "prime_master"
	KeyBinaryBlitz = "binary_blitz"
	KeyTwentyFour  = "twenty_four"
)

// Question is the server-side question state for one round. Each mode owns
// its concrete type; a mode's scorer receives back the question its
// generator produced.
type Question interface {
	// Payload returns the client-visible fields merged into the new_round event.
	Payload() map[string]any
	// CorrectDisplay is what round_result shows as the correct answer.
	CorrectDisplay() any
}

// Submission is one player's raw answer with its server-side receipt time.
// Client-reported times are never trusted for scoring.
type Submission struct {
	Value string
	At    time.Time
}

// Entrant pairs a seated player with their submission, if any.
type Entrant struct {
	ConnID     string
	Name       string
	Submission *Submission
}

// Round is the immutable snapshot a scorer ranks. Entrants appear in join
// order, which keeps ties between non-finishers neutral.
type Round struct {
	Question  Question
	StartedAt time.Time
	Entrants  []Entrant
}

// Ranking is one row of the round_result rankings array. Optional fields
// are present only in the modes that use them.
type Ranking struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Answer  any      `json:"answer"`
	Diff    *float64 `json:"diff,omitempty"`
	TimeMs  *int64   `json:"time,omitempty"`
	Correct *bool    `json:"correct,omitempty"`
	Awarded int      `json:"awarded"`
}

// Result is a scored round. Rankings are ordered best first; Awarded points
// are applied to player scores by the scheduler, never by the scorer.
type Result struct {
	Winner        string    `json:"winner"`
	CorrectAnswer any       `json:"correctAnswer"`
	Rankings      []Ranking `json:"rankings"`
	IsTie         bool      `json:"isTie"`
	Mode          string    `json:"mode"`
}

// Mode is a pluggable pair of question generator and round scorer.
type Mode interface {
	Key() string
	Generate(difficulty string) Question
	Score(round Round) Result
}

// Registry maps mode keys to registered modes with a defined fallback.
type Registry struct {
	modes    map[string]Mode
	fallback Mode
}

// NewRegistry returns a registry holding the four built-in modes, with
// root_rush as the fallback for unknown or unset keys.
func NewRegistry() *Registry {
	r := &Registry{modes: make(map[string]Mode)}
	for _, m := range []Mode{RootRush{}, PrimeMaster{}, BinaryBlitz{}, TwentyFour{}} {
		r.modes[m.Key()] = m
	}
	r.fallback = r.modes[KeyRootRush]
	return r
}

// Get returns the mode for key, or the fallback mode.
func (r *Registry) Get(key string) Mode {
	if m, ok := r.modes[key]; ok {
		return m
	}
	return r.fallback
}

// Has reports whether key names a registered mode.
func (r *Registry) Has(key string) bool {
	_, ok := r.modes[key]
	return ok
}

// rewardTable is indexed by the first rank index a tie group reaches; all
// members of the group receive that slot's award.
var rewardTable = [...]int{100, 80, 60, 40, 20}

// consolationAward goes to ranked entrants past the reward table.
const consolationAward = 10

// unranked is the fitness sentinel for entrants who did not answer or
// answered incorrectly. They sort last and earn nothing.
func unranked() float64 { return math.Inf(1) }

// assignAwards maps an ascending fitness slice to per-position awards.
func assignAwards(fitness []float64) []int {
	awards := make([]int, len(fitness))
	groupStart := 0
	for i, f := range fitness {
		if math.IsInf(f, 1) {
			continue
		}
		if i > 0 && f != fitness[i-1] {
			groupStart = i
		}
		if groupStart < len(rewardTable) {
			awards[i] = rewardTable[groupStart]
		} else {
			awards[i] = consolationAward
		}
	}
	return awards
}

// topTie reports whether the two best positions are ranked and tied. Ties
// deeper in the ranking share awards without raising the flag.
func topTie(fitness []float64) bool {
	return len(fitness) > 1 &&
		!math.IsInf(fitness[0], 1) &&
		!math.IsInf(fitness[1], 1) &&
		fitness[0] == fitness[1]
}

func elapsedMs(sub *Submission, start time.Time) float64 {
	return float64(sub.At.Sub(start)) / float64(time.Millisecond)
}

func ptrTo[T any](v T) *T { return &v }
