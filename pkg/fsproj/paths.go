package fsproj

import (
	"strconv"
	"strings"
)

// ResourceKind identifies which sub-resource a parsed path names
// (spec.md §4.E namespace table).
type ResourceKind int

const (
	ResUnknown ResourceKind = iota
	ResRoot
	ResSysConfig
	ResMQTTConfig
	ResCrontab
	ResSwitchConfig
	ResInputConfig
	ResScriptsDir
	ResScriptFile
	ResProcDir
	ResProcSwitchDir
	ResProcSwitchSlotDir
	ResProcSwitchOutput
	ResProcSwitchScalar
	ResProcInputDir
	ResProcInputSlotDir
	ResProcInputScalar
)

// switchScalarFields are the read-only telemetry leaves under
// /proc/switch/<i>/ other than output (spec.md §4.E).
var switchScalarFields = map[string]bool{
	"id": true, "source": true, "apower": true, "voltage": true,
	"current": true, "freq": true, "energy": true, "ret_energy": true,
	"temperature": true,
}

// inputScalarFields are the read-only telemetry leaves under
// /proc/input/<i>/.
var inputScalarFields = map[string]bool{
	"id": true, "state": true,
}

// Resource is a parsed virtual path: its kind and, where applicable, its
// slot index and scalar field name.
type Resource struct {
	Kind  ResourceKind
	Index int
	Field string
}

// ParsePath classifies a slash-separated virtual path (without the mount
// point prefix) into a Resource. An unrecognized path returns
// ResUnknown, ok=false.
func ParsePath(path string) (Resource, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return Resource{Kind: ResRoot}, true
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] == "sys_config.json":
		return Resource{Kind: ResSysConfig}, true
	case len(parts) == 1 && parts[0] == "mqtt_config.json":
		return Resource{Kind: ResMQTTConfig}, true
	case len(parts) == 1 && parts[0] == "crontab":
		return Resource{Kind: ResCrontab}, true
	case len(parts) == 1 && parts[0] == "scripts":
		return Resource{Kind: ResScriptsDir}, true
	case len(parts) == 1 && parts[0] == "proc":
		return Resource{Kind: ResProcDir}, true
	}

	if len(parts) == 1 {
		if i, ok := matchIndexed(parts[0], "switch_", "_config.json"); ok {
			return Resource{Kind: ResSwitchConfig, Index: i}, true
		}
		if i, ok := matchIndexed(parts[0], "input_", "_config.json"); ok {
			return Resource{Kind: ResInputConfig, Index: i}, true
		}
		return Resource{}, false
	}

	if len(parts) == 2 && parts[0] == "scripts" {
		if i, ok := matchIndexed(parts[1], "script_", ".js"); ok {
			return Resource{Kind: ResScriptFile, Index: i}, true
		}
		return Resource{}, false
	}

	if parts[0] != "proc" {
		return Resource{}, false
	}
	if len(parts) < 2 {
		return Resource{}, false
	}

	switch parts[1] {
	case "switch":
		return parseProcSlot(parts[2:], ResProcSwitchDir, ResProcSwitchSlotDir, ResProcSwitchOutput, ResProcSwitchScalar, switchScalarFields)
	case "input":
		return parseProcSlot(parts[2:], ResProcInputDir, ResProcInputSlotDir, 0, ResProcInputScalar, inputScalarFields)
	default:
		return Resource{}, false
	}
}

// parseProcSlot handles the common shape of proc/<component>[/<i>[/<leaf>]].
func parseProcSlot(rest []string, dirKind, slotDirKind, outputKind, scalarKind ResourceKind, fields map[string]bool) (Resource, bool) {
	if len(rest) == 0 {
		return Resource{Kind: dirKind}, true
	}
	idx, err := strconv.Atoi(rest[0])
	if err != nil {
		return Resource{}, false
	}
	if len(rest) == 1 {
		return Resource{Kind: slotDirKind, Index: idx}, true
	}
	if len(rest) == 2 {
		if outputKind != 0 && rest[1] == "output" {
			return Resource{Kind: outputKind, Index: idx}, true
		}
		if fields[rest[1]] {
			return Resource{Kind: scalarKind, Index: idx, Field: rest[1]}, true
		}
	}
	return Resource{}, false
}

// matchIndexed matches "<prefix><digits><suffix>" and returns the digits as
// an int.
func matchIndexed(s, prefix, suffix string) (int, bool) {
	if len(s) < len(prefix)+len(suffix) || !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return 0, false
	}
	mid := s[len(prefix) : len(s)-len(suffix)]
	if mid == "" {
		return 0, false
	}
	n, err := strconv.Atoi(mid)
	if err != nil {
		return 0, false
	}
	return n, true
}
