package fsproj

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shellyfs/shellyfs/pkg/auditlog"
	"github.com/shellyfs/shellyfs/pkg/reconcile"
	"github.com/shellyfs/shellyfs/pkg/util"
)

// OpenFlag mirrors the subset of POSIX open(2) flags the Projection cares
// about; the external filesystem collaborator translates its own flag
// representation into these before calling Open (spec.md §6).
type OpenFlag int

const (
	OpenTruncate OpenFlag = 1 << iota
	OpenAppend
)

// Handle is a per-open write buffer (spec.md §4.E "Open-for-write"):
// concurrent opens for write get independent buffers, and there is no
// cross-open coordination — the last flush wins from the device's
// perspective.
type Handle struct {
	res  Resource
	path string
	buf  []byte
}

// Open allocates a Handle for path, seeded with the resource's current
// content unless OpenTruncate is set.
func (p *Projection) Open(path string, flags OpenFlag) (*Handle, error) {
	res, ok := ParsePath(path)
	if !ok {
		return nil, util.NewValidationError("no such resource")
	}

	h := &Handle{res: res, path: path}
	if flags&OpenTruncate != 0 {
		return h, nil
	}
	content, _, ok := renderContent(p.Cache, res)
	if ok {
		h.buf = append([]byte(nil), content...)
	}
	return h, nil
}

// Write overwrites or appends into h's buffer at offset (or at the buffer's
// current end, if this call's flags include OpenAppend).
func (h *Handle) Write(data []byte, offset int64, flags OpenFlag) (int, error) {
	if flags&OpenAppend != 0 {
		offset = int64(len(h.buf))
	}
	if offset < 0 {
		return 0, util.NewValidationError("negative write offset")
	}
	end := offset + int64(len(data))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[offset:end], data)
	return len(data), nil
}

// Read returns h's buffered content (not the device's last-known state),
// matching POSIX's "read what you wrote before flush" expectation for an
// open-for-write handle.
func (h *Handle) Read(offset int64, size int) []byte {
	if offset < 0 || offset > int64(len(h.buf)) {
		return nil
	}
	end := offset + int64(size)
	if end > int64(len(h.buf)) {
		end = int64(len(h.buf))
	}
	return h.buf[offset:end]
}

// Truncate shrinks or clears h's buffer (spec.md §4.E "Truncate"). Growing
// past the current size is a no-op; the buffer grows lazily on the next
// Write instead.
func (h *Handle) Truncate(size int64) {
	if size <= 0 {
		h.buf = nil
		return
	}
	if size < int64(len(h.buf)) {
		h.buf = h.buf[:size]
	}
}

// Flush submits the RPC this handle's resource requires, per spec.md §4.E
// "Flush is where the RPC is emitted". It is a no-op for read-only
// resources and for directories. Every mutating flush is recorded to the
// audit journal — this bridge's unit of auditable work — with its
// resource, the RPC method it issued, and whether the device accepted it.
func (p *Projection) Flush(h *Handle) error {
	method, resource := flushLabel(h.res)
	if method == "" {
		return nil
	}

	start := time.Now()
	var err error
	switch h.res.Kind {
	case ResSysConfig, ResMQTTConfig, ResSwitchConfig, ResInputConfig:
		err = p.flushConfig(h)
	case ResProcSwitchOutput:
		err = p.flushSwitchOutput(h)
	case ResScriptFile:
		err = p.flushScriptUpload(h)
	case ResCrontab:
		err = p.flushCrontab(h)
	}

	event := auditlog.NewEvent(h.path, string(auditlog.EventTypeFlush)).
		WithResource(resource).
		WithMethod(method).
		WithDuration(time.Since(start))
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	auditlog.Log(event)

	return err
}

// flushLabel names the RPC method a flush of res issues and the resource
// identifier to record it under, or ("", "") for resources Flush never acts
// on (read-only documents, directories).
func flushLabel(res Resource) (method, resource string) {
	switch res.Kind {
	case ResSysConfig:
		return "Sys.SetConfig", "sys"
	case ResMQTTConfig:
		return "MQTT.SetConfig", "mqtt"
	case ResSwitchConfig:
		return "Switch.SetConfig", fmt.Sprintf("switch:%d", res.Index)
	case ResInputConfig:
		return "Input.SetConfig", fmt.Sprintf("input:%d", res.Index)
	case ResProcSwitchOutput:
		return "Switch.Set", fmt.Sprintf("switch:%d", res.Index)
	case ResScriptFile:
		return "Script.PutCode", fmt.Sprintf("script:%d", res.Index)
	case ResCrontab:
		return "Schedule.Diff", "schedule"
	default:
		return "", ""
	}
}

// flushConfig validates the buffer as JSON, wraps it per spec.md §4.E, and
// submits the matching *.SetConfig. The cache is deliberately NOT updated
// here — reconciliation re-fetches on success and leaves it unchanged on
// error (spec.md §8 property 6).
func (p *Projection) flushConfig(h *Handle) error {
	if !p.Connected() {
		return util.NewTransportError("flush")
	}
	var parsed interface{}
	if err := json.Unmarshal(h.buf, &parsed); err != nil {
		return util.NewMalformedJSONError("", err.Error())
	}

	var method string
	var params interface{}
	switch h.res.Kind {
	case ResSysConfig:
		method = "Sys.SetConfig"
		params = struct {
			Config json.RawMessage `json:"config"`
		}{Config: json.RawMessage(h.buf)}
	case ResMQTTConfig:
		method = "MQTT.SetConfig"
		params = struct {
			Config json.RawMessage `json:"config"`
		}{Config: json.RawMessage(h.buf)}
	case ResSwitchConfig:
		method = "Switch.SetConfig"
		params = struct {
			ID     int             `json:"id"`
			Config json.RawMessage `json:"config"`
		}{ID: h.res.Index, Config: json.RawMessage(h.buf)}
	case ResInputConfig:
		method = "Input.SetConfig"
		params = struct {
			ID     int             `json:"id"`
			Config json.RawMessage `json:"config"`
		}{ID: h.res.Index, Config: json.RawMessage(h.buf)}
	}

	raw, _ := json.Marshal(params)
	_, err := p.Engine.Send.Send(method, raw)
	return err
}

// flushSwitchOutput is the IMMEDIATE write path: no buffer, parses the
// payload as boolean and emits Switch.Set, then enqueues Switch.GetStatus
// to accelerate feedback (spec.md §4.E, §8 scenario S5).
func (p *Projection) flushSwitchOutput(h *Handle) error {
	if !p.Connected() {
		return util.NewTransportError("flush")
	}
	on := parseBoolPayload(h.buf)

	setParams, _ := json.Marshal(struct {
		ID int  `json:"id"`
		On bool `json:"on"`
	}{ID: h.res.Index, On: on})
	if _, err := p.Engine.Send.Send("Switch.Set", setParams); err != nil {
		return err
	}

	statusParams, _ := json.Marshal(struct {
		ID int `json:"id"`
	}{ID: h.res.Index})
	_, err := p.Engine.Send.Send("Switch.GetStatus", statusParams)
	return err
}

// parseBoolPayload matches spec.md §4.E: "true" or a leading "1" means on,
// anything else means off.
func parseBoolPayload(buf []byte) bool {
	s := strings.TrimSpace(string(buf))
	if s == "true" {
		return true
	}
	return strings.HasPrefix(s, "1")
}

// flushScriptUpload chunks the buffer and drives the engine's response-
// gated Script.PutCode sequence (spec.md §4.E, §8 scenario S4).
func (p *Projection) flushScriptUpload(h *Handle) error {
	if !p.Connected() {
		return util.NewTransportError("flush")
	}
	return p.Engine.UploadScriptCode(h.res.Index, bytes.Clone(h.buf))
}

// flushCrontab runs the crontab diff (spec.md §4.D) and submits the
// minimal set of Schedule.Create/Update/Delete RPCs (spec.md §8 scenario
// S3).
func (p *Projection) flushCrontab(h *Handle) error {
	if !p.Connected() {
		return util.NewTransportError("flush")
	}
	desired, err := reconcile.ParseCrontab(string(h.buf))
	if err != nil {
		return util.NewMalformedJSONError("crontab", err.Error())
	}
	ops := reconcile.DiffAndEmit(desired, p.Cache.Schedules())
	for _, op := range ops {
		if _, err := p.Engine.Send.Send(op.Method, op.Params); err != nil {
			return fmt.Errorf("crontab sync: %s: %w", op.Kind, err)
		}
	}
	return nil
}

// Release drops h's buffer; the Projection retains no further reference to
// it (spec.md §4.E "Release").
func (p *Projection) Release(h *Handle) {
	h.buf = nil
}
