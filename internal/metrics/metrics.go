// Package metrics exposes Prometheus counters for the wake engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "shila_"

var (
	registerOnce sync.Once

	alarmsFired      *prometheus.CounterVec
	remindersFired   *prometheus.CounterVec
	snoozes          prometheus.Counter
	dismissAttempts  *prometheus.CounterVec
	sideEffectErrors *prometheus.CounterVec
	tickDuration     *prometheus.HistogramVec
	recordErrors     *prometheus.CounterVec
	activeAlarm      prometheus.Gauge
	controlRequests  *prometheus.CounterVec
)

// Init registers the metrics with the default registry. Later calls are no-ops.
func Init() {
	registerOnce.Do(func() {
		alarmsFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_fired_total",
				Help: "Total alarms fired by mode",
			},
			[]string{"mode"},
		)
		remindersFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminders_fired_total",
				Help: "Total reminders fired by priority",
			},
			[]string{"priority"},
		)
		snoozes = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "snoozes_total",
				Help: "Total accepted snoozes",
			},
		)
		dismissAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dismiss_attempts_total",
				Help: "Total dismiss attempts by result",
			},
			[]string{"result"},
		)
		sideEffectErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "side_effect_errors_total",
				Help: "Total failed side-effect calls by component",
			},
			[]string{"component"},
		)
		tickDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_duration_seconds",
				Help:    "Scheduler tick duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		recordErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "record_errors_total",
				Help: "Total records skipped because they could not be evaluated",
			},
			[]string{"kind"},
		)
		activeAlarm = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_alarm",
				Help: "1 while an alarm is ringing, 0 otherwise",
			},
		)

		controlRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "control_requests_total",
				Help: "Total control requests by transport, command and result",
			},
			[]string{"transport", "command", "result"},
		)

		prometheus.MustRegister(
			alarmsFired,
			remindersFired,
			snoozes,
			dismissAttempts,
			sideEffectErrors,
			tickDuration,
			recordErrors,
			activeAlarm,
			controlRequests,
		)
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func IncAlarmFired(mode string) {
	if alarmsFired != nil {
		alarmsFired.WithLabelValues(orUnknown(mode)).Inc()
	}
}

func IncReminderFired(priority string) {
	if remindersFired != nil {
		remindersFired.WithLabelValues(orUnknown(priority)).Inc()
	}
}

func IncSnooze() {
	if snoozes != nil {
		snoozes.Inc()
	}
}

// IncDismissAttempt counts a dismiss attempt; result is "correct" or "wrong".
func IncDismissAttempt(result string) {
	if dismissAttempts != nil {
		dismissAttempts.WithLabelValues(orUnknown(result)).Inc()
	}
}

func IncSideEffectError(component string) {
	if sideEffectErrors != nil {
		sideEffectErrors.WithLabelValues(orUnknown(component)).Inc()
	}
}

func IncRecordError(kind string) {
	if recordErrors != nil {
		recordErrors.WithLabelValues(orUnknown(kind)).Inc()
	}
}

func ObserveTick(kind string, d time.Duration) {
	if tickDuration != nil {
		tickDuration.WithLabelValues(orUnknown(kind)).Observe(d.Seconds())
	}
}

func SetActiveAlarm(active bool) {
	if activeAlarm == nil {
		return
	}
	if active {
		activeAlarm.Set(1)
		return
	}
	activeAlarm.Set(0)
}

// IncControlRequest counts one UDS or HTTP request; result is "ok" or an error code.
func IncControlRequest(transport, command, result string) {
	if controlRequests != nil {
		controlRequests.WithLabelValues(transport, orUnknown(command), orUnknown(result)).Inc()
	}
}
