// Package devcache implements the Device State Cache (spec.md §3, §4.C): a
// single coarse-locked structure holding every sub-resource of the device —
// configuration and telemetry for sys, MQTT, N switches, N inputs, up to M
// scripts, and up to S schedules — kept coherent with the device via typed
// merge operations. Invariants 1-6 of spec.md §3 are enforced inside the
// merge functions; nothing outside this package may mutate a slot directly.
package devcache

import "time"

// NSwitches and NInputs are the fixed slot counts (original_source's
// MAX_SWITCHES/MAX_INPUTS = 16; spec.md leaves N unspecified and calls it
// "N switches, N inputs" generically).
const (
	NSwitches = 16
	NInputs   = 16
)

// MaxScripts bounds the indexed script collection (original_source's
// MAX_SCRIPTS).
const MaxScripts = 10

// MaxScriptCode bounds a single script's code body in bytes
// (original_source's MAX_SCRIPT_CODE).
const MaxScriptCode = 20480

// ScriptChunkSize is the default chunk size used when splitting a script
// body across multiple Script.PutCode/Script.GetCode calls
// (original_source's SCRIPT_CHUNK_SIZE).
const ScriptChunkSize = 2048

// MaxSchedules bounds the schedule collection (original_source's
// MAX_SCHEDULES).
const MaxSchedules = 20

// MaxScheduleCalls bounds the calls list of a single schedule entry
// (original_source's MAX_SCHEDULE_CALLS).
const MaxScheduleCalls = 5

// NoUploadInFlight is the sentinel value for ScriptSlot.LastUploadReqID
// meaning "no upload in flight" (spec.md §3 invariant 5).
const NoUploadInFlight = -1

// NoActiveFetch is the sentinel value for DeviceCache's active script
// chunk-retrieval id meaning "no retrieval in progress" (spec.md §3
// invariant 4).
const NoActiveFetch = -1

// zeroTime is returned by getters for fields that have never been set, so
// callers can distinguish "never updated" from any real observation.
var zeroTime = time.Time{}
