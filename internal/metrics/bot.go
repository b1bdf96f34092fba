package metrics

import (
	"time"

	"github.com/wordpadbot/wordpadbot/internal/observability"
)

// Bot metric names.
const (
	RepliesTotal        = "bot_events_total"
	PollsTotal          = "bot_polls_total"
	PollDuration        = "bot_poll_duration_ms"
	ImageTransformMS    = "bot_image_transform_ms"
	RecentReplies       = "bot_recent_replies"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
)

// RecordOutcome counts one handled event by source (mention or timeline) and
// outcome.
func RecordOutcome(source, outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RepliesTotal, 1, map[string]string{
		"source":  source,
		"outcome": outcome,
	})
}

// RecordPoll counts a poll cycle and records how long it took.
func RecordPoll(poll string, success bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(PollsTotal, 1, map[string]string{
		"poll":   poll,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(PollDuration, duration, map[string]string{"poll": poll})
}

// RecordImageTransform records the duration of one wordpad transform.
func RecordImageTransform(duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Histogram(ImageTransformMS, duration, nil)
}

// SetRecentReplies publishes the size of the in-window reply log.
func SetRecentReplies(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(RecentReplies, float64(count), nil)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the process start time (Unix seconds).
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
