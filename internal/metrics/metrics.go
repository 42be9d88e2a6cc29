package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservation_created_total",
			Help:      "Count of reservations committed.",
		},
	)

	reservationRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservation_rejected_total",
			Help:      "Count of reservations rejected because the slot was taken.",
		},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservation_cancelled_total",
			Help:      "Count of reservations cancelled by users.",
		},
	)

	commandsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "commands_handled_total",
			Help:      "Count of protocol commands handled by command and status.",
		},
		[]string{"command", "status"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "courtbook",
			Name:      "active_sessions",
			Help:      "Number of client sessions currently connected.",
		},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "courtbook",
			Name:      "terrain_lock_wait_seconds",
			Help:      "Time spent waiting to acquire a terrain lock.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated, reservationRejected, reservationCancelled,
			commandsHandled, activeSessions, lockWait,
		)
	})
}

func IncReservationCreated()   { reservationCreated.Inc() }
func IncReservationRejected()  { reservationRejected.Inc() }
func IncReservationCancelled() { reservationCancelled.Inc() }

func IncCommand(command, status string) {
	commandsHandled.WithLabelValues(command, status).Inc()
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }

func ObserveLockWait(seconds float64) { lockWait.Observe(seconds) }
