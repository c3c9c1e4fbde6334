package devcache

import (
	"encoding/json"

	"github.com/shellyfs/shellyfs/pkg/util"
)

// inputConfigWire mirrors the subset of Input.GetConfig's result this cache
// tracks (spec.md §3 inputs[i]).
type inputConfigWire struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// UpdateInputConfig merges an Input.GetConfig result into input slot id's
// config document. id must be in [0, NInputs). A successful
// Input.SetConfig does NOT call this directly — the engine re-issues an
// Input.GetConfig scoped to id instead.
func (c *DeviceCache) UpdateInputConfig(id int, raw json.RawMessage) error {
	if id < 0 || id >= NInputs {
		return util.NewValidationError("input id out of range")
	}
	var wire inputConfigWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	in := &c.inputs[id]
	in.Valid = true
	in.Config.Raw = raw
	in.Config.Parsed = ParsedInputConfig{
		Name: wire.Name,
		Type: ParseInputType(wire.Type),
	}
	in.Config.Valid = true
	in.Config.LastUpdate = now()
	c.bumpRev()
	return nil
}

// inputStatusWire mirrors the subset of Input.GetStatus's result / the
// NotifyStatus notification's input:N component this cache tracks.
type inputStatusWire struct {
	ID    int   `json:"id"`
	State *bool `json:"state"`
}

// UpdateInputStatus merges a (possibly partial) Input.GetStatus result or
// NotifyStatus fragment into input slot id's status, advancing the
// per-field modification instant only for fields that actually changed
// (spec.md §3 invariant 3).
func (c *DeviceCache) UpdateInputStatus(id int, raw json.RawMessage) error {
	if id < 0 || id >= NInputs {
		return util.NewValidationError("input id out of range")
	}
	var wire inputStatusWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	in := &c.inputs[id]
	in.Valid = true
	t := now()
	changed := false

	if wire.State != nil && *wire.State != in.Status.State {
		in.Status.State = *wire.State
		in.Timestamps.State = t
		changed = true
	}
	if in.Status.ID != id {
		in.Status.ID = id
		in.Timestamps.ID = t
	}

	if changed {
		c.bumpRev()
	}
	return nil
}
