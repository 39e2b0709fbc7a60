package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LongPollUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "longpoll_updates_total",
		Help: "Апдейты, полученные из long poll",
	})
	LongPollDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "longpoll_updates_dropped_total",
		Help: "Апдейты, которые не удалось разобрать в сообщение",
	})
	LongPollRebootstraps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "longpoll_session_rebootstraps_total",
		Help: "Переинициализации сессии long poll",
	})
	MessagesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_dispatched_total",
		Help: "Сообщения, переданные поведениям",
	}, []string{"behavior"})
	BehaviorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "behavior_errors_total",
		Help: "Ошибки обработки сообщений поведениями",
	}, []string{"behavior"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	PieceMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "piece_matches_total",
		Help: "Распознанные картинки этапов",
	}, []string{"piece"})
	StageCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_completions_total",
		Help: "Пройденные этапы",
	}, []string{"stage"})
	ChallengeCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "challenge_completions_total",
		Help: "Пройденные одноразовые испытания",
	}, []string{"challenge"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 35},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		LongPollUpdates,
		LongPollDropped,
		LongPollRebootstraps,
		MessagesDispatched,
		BehaviorErrors,
		BotSendErrors,
		PieceMatches,
		StageCompletions,
		ChallengeCompletions,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
