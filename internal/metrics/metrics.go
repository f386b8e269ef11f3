package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the gameplay instruments exposed on /metrics.
type Metrics struct {
	RoomsOpen        prometheus.Gauge
	PlayersConnected prometheus.Gauge
	RoundsPlayed     *prometheus.CounterVec
	AnswersSubmitted *prometheus.CounterVec
	GamesFinished    prometheus.Counter
	InvitesRelayed   *prometheus.CounterVec
}

// New registers gameplay instruments on the given registerer. Passing nil
// uses the default prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RoomsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "answer_rooms_open",
			Help: "Number of rooms currently alive.",
		}),
		PlayersConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "answer_players_seated",
			Help: "Number of player seats across all rooms, grace-period seats included.",
		}),
		RoundsPlayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answer_rounds_played_total",
			Help: "Rounds concluded, labelled by game mode.",
		}, []string{"mode"}),
		AnswersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answer_submissions_total",
			Help: "Accepted answer submissions, labelled by game mode.",
		}, []string{"mode"}),
		GamesFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "answer_games_finished_total",
			Help: "Games that reached the final ranking.",
		}),
		InvitesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answer_invites_relayed_total",
			Help: "Friend invites routed, labelled by delivery path.",
		}, []string{"via"}),
	}
}
