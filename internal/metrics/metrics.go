package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mm_queue_waiting_players", Help: "players currently waiting in the queue",
	})
	LobbyTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_lobby_transitions_total", Help: "lobby status transitions by target status",
	}, []string{"status"})
	MapBans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_map_bans_total", Help: "map bans by actor kind (human|bot)",
	}, []string{"actor"})
	ResultsReviewed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_results_reviewed_total", Help: "moderated match results by outcome",
	}, []string{"outcome"})
	SweepCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mm_sweep_cancelled_total", Help: "lobbies cancelled by the expiry sweep",
	})
	SweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mm_sweep_errors_total", Help: "expiry sweep failures (retried next tick)",
	})
)

func Init() {
	prometheus.MustRegister(QueueWaiting, LobbyTransitions, MapBans, ResultsReviewed, SweepCancelled, SweepErrors)
}
