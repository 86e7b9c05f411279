package models

import "time"

// Sentinel telemetry values recorded when a probe got no response at all.
// The log never stores absent values: a timed-out check is a real row with
// RespCodeNone and LatencyNone.
const (
	RespCodeNone = 0
	LatencyNone  = -1
)

// CheckResult is one immutable entry in the append-only check log.
type CheckResult struct {
	// MonitorKey is the owning monitor's project id and slug, used as the
	// log's partition key.
	MonitorKey string

	// Timestamp is the due time of the cycle that produced this entry,
	// not the wall-clock probe time. Keying the log by the pre-update due
	// time ties each entry to exactly one due cycle, even when scheduler
	// runs overlap.
	Timestamp time.Time

	// Status is the monitor state resulting from this check.
	Status MonitorState

	// RespCode is the observed HTTP status, or RespCodeNone when no
	// response was obtained.
	RespCode int

	// LatencySecs is the probe duration in seconds, or LatencyNone when
	// no response was obtained.
	LatencySecs float64
}
