package config

import "time"

// WorkflowConfig tunes the access-request lifecycle.
type WorkflowConfig struct {
	// InitialStatus is the status of a freshly submitted request:
	// "pending" (default) or "inactive" for sites that hide new requests.
	InitialStatus string
	// RestoreFallback decides the status restored from inactive when no
	// previous status was recorded: "infer" (accepted when a hash is attached, else pending)
	// or "pending".
	RestoreFallback string
	ActionTokenTTL  time.Duration
	// UsedMarkerGrace is added to ActionTokenTTL for the single-use marker.
	UsedMarkerGrace time.Duration
}

func LoadWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		InitialStatus:   envStr("INITIAL_REQUEST_STATUS", "pending"),
		RestoreFallback: envStr("RESTORE_FALLBACK", "infer"),
		ActionTokenTTL:  envDur("ACTION_TOKEN_TTL", 48*time.Hour),
		UsedMarkerGrace: envDur("USED_MARKER_GRACE", 24*time.Hour),
	}
}
