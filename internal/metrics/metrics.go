package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/weiawesome/wes-io-stage/internal/domain"
)

// Relay Metrics
var (
	// RelayConnectedClients tracks authenticated relay clients by client type
	RelayConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stage_relay_connected_clients",
			Help: "Authenticated relay clients by client type",
		},
		[]string{"client_type"},
	)

	// RelayMessagesTotal tracks relay frames by command and outcome
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_relay_messages_total",
			Help: "Relay frames by command and outcome (routed, undeliverable, rejected, throttled)",
		},
		[]string{"cmd", "outcome"},
	)

	// RelayAuthFailures counts wrong pins and auth timeouts
	RelayAuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_relay_auth_failures_total",
			Help: "Relay auth failures by reason",
		},
		[]string{"reason"},
	)

	// RelayCameraSources tracks connected mobile cameras
	RelayCameraSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stage_relay_camera_sources",
			Help: "Mobile camera devices connected to the relay",
		},
	)
)

// Camera Metrics
var (
	// CameraStateChanges counts visible session state changes
	CameraStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_camera_state_changes_total",
			Help: "Camera session state changes by role and new state",
		},
		[]string{"role", "state"},
	)

	// CameraBlanks counts program feed losses that blanked the output
	CameraBlanks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stage_camera_blanks_total",
			Help: "Program camera failures that blanked the output",
		},
	)
)

// Program Metrics
var (
	// ProgramMutations counts program state mutations by op
	ProgramMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_program_mutations_total",
			Help: "Program state mutations by op",
		},
		[]string{"op"},
	)

	// ProgramVersion is the latest published program version
	ProgramVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stage_program_version",
			Help: "Latest program state version",
		},
	)

	// ProgramPublishErrors counts deltas that failed to publish
	ProgramPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stage_program_publish_errors_total",
			Help: "Program deltas that failed to publish",
		},
	)

	// AsRunDeliveryFailures counts as-run records the broker never acknowledged
	AsRunDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stage_asrun_delivery_failures_total",
			Help: "As-run log records that failed delivery",
		},
	)
)

// ObserveCameraState records a camera session state change.
func ObserveCameraState(_ string, role domain.CameraRole, state domain.ConnectionState) {
	CameraStateChanges.WithLabelValues(string(role), string(state)).Inc()
}

// ObserveBlank records a program blank.
func ObserveBlank(string) {
	CameraBlanks.Inc()
}
