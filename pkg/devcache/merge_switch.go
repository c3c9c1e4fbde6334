package devcache

import (
	"encoding/json"

	"github.com/shellyfs/shellyfs/pkg/util"
)

// switchConfigWire mirrors the subset of Switch.GetConfig's result this
// cache tracks (spec.md §3 switches[i]).
type switchConfigWire struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	InMode       string  `json:"in_mode"`
	InLocked     bool    `json:"in_locked"`
	InitialState string  `json:"initial_state"`
	AutoOn       bool    `json:"auto_on"`
	AutoOnDelay  float64 `json:"auto_on_delay"`
	AutoOff      bool    `json:"auto_off"`
	AutoOffDelay float64 `json:"auto_off_delay"`
	PowerLimit   float64 `json:"power_limit"`
	VoltageLimit float64 `json:"voltage_limit"`
	CurrentLimit float64 `json:"current_limit"`
}

// UpdateSwitchConfig merges a Switch.GetConfig result into switch slot id's
// config document. id must be in [0, NSwitches). A successful
// Switch.SetConfig does NOT call this directly — the engine re-issues a
// Switch.GetConfig scoped to id instead.
func (c *DeviceCache) UpdateSwitchConfig(id int, raw json.RawMessage) error {
	if id < 0 || id >= NSwitches {
		return util.NewValidationError("switch id out of range")
	}
	var wire switchConfigWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.switches[id]
	s.Valid = true
	s.Config.Raw = raw
	s.Config.Parsed = ParsedSwitchConfig{
		Name:         wire.Name,
		InMode:       ParseSwitchInMode(wire.InMode),
		InLocked:     wire.InLocked,
		InitialState: ParseSwitchInitialState(wire.InitialState),
		AutoOn:       wire.AutoOn,
		AutoOnDelay:  wire.AutoOnDelay,
		AutoOff:      wire.AutoOff,
		AutoOffDelay: wire.AutoOffDelay,
		PowerLimit:   wire.PowerLimit,
		VoltageLimit: wire.VoltageLimit,
		CurrentLimit: wire.CurrentLimit,
	}
	s.Config.Valid = true
	s.Config.LastUpdate = now()
	c.bumpRev()
	return nil
}

// switchStatusWire mirrors the subset of Switch.GetStatus's result / the
// NotifyStatus notification's switch:N component this cache tracks
// (spec.md §3 switches[i].status).
type switchStatusWire struct {
	ID          int      `json:"id"`
	Source      *string  `json:"source"`
	Output      *bool    `json:"output"`
	APower      *float64 `json:"apower"`
	Voltage     *float64 `json:"voltage"`
	Current     *float64 `json:"current"`
	Frequency   *float64 `json:"freq"`
	Temperature *float64 `json:"temperature_c"`
	AEnergy     *struct {
		Total float64 `json:"total"`
	} `json:"aenergy"`
	RetAEnergy *struct {
		Total float64 `json:"total"`
	} `json:"ret_aenergy"`
}

// UpdateSwitchStatus merges a (possibly partial) Switch.GetStatus result or
// NotifyStatus fragment into switch slot id's status, advancing the
// per-field modification instant only for fields that actually changed
// (spec.md §3 invariant 3, §8 scenario S2). Fields absent from raw
// (represented by nil pointers) are left untouched.
func (c *DeviceCache) UpdateSwitchStatus(id int, raw json.RawMessage) error {
	if id < 0 || id >= NSwitches {
		return util.NewValidationError("switch id out of range")
	}
	var wire switchStatusWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.switches[id]
	s.Valid = true
	t := now()
	changed := false

	if wire.Source != nil && *wire.Source != s.Status.Source {
		s.Status.Source = *wire.Source
		s.Timestamps.Source = t
		changed = true
	}
	if wire.Output != nil && *wire.Output != s.Status.Output {
		s.Status.Output = *wire.Output
		s.Timestamps.Output = t
		changed = true
	}
	if wire.APower != nil && *wire.APower != s.Status.APower {
		s.Status.APower = *wire.APower
		s.Timestamps.APower = t
		changed = true
	}
	if wire.Voltage != nil && *wire.Voltage != s.Status.Voltage {
		s.Status.Voltage = *wire.Voltage
		s.Timestamps.Voltage = t
		changed = true
	}
	if wire.Current != nil && *wire.Current != s.Status.Current {
		s.Status.Current = *wire.Current
		s.Timestamps.Current = t
		changed = true
	}
	if wire.Frequency != nil && *wire.Frequency != s.Status.Frequency {
		s.Status.Frequency = *wire.Frequency
		s.Timestamps.Frequency = t
		changed = true
	}
	if wire.Temperature != nil && *wire.Temperature != s.Status.Temperature {
		s.Status.Temperature = *wire.Temperature
		s.Timestamps.Temperature = t
		changed = true
	}
	if wire.AEnergy != nil && wire.AEnergy.Total != s.Status.Energy {
		s.Status.Energy = wire.AEnergy.Total
		s.Timestamps.Energy = t
		changed = true
	}
	if wire.RetAEnergy != nil && wire.RetAEnergy.Total != s.Status.RetEnergy {
		s.Status.RetEnergy = wire.RetAEnergy.Total
		s.Timestamps.RetEnergy = t
		changed = true
	}
	if s.Status.ID != id {
		s.Status.ID = id
		s.Timestamps.ID = t
	}

	if changed {
		c.bumpRev()
	}
	return nil
}
