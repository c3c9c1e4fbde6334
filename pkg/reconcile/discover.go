package reconcile

import (
	"encoding/json"

	"github.com/shellyfs/shellyfs/pkg/devcache"
	"github.com/shellyfs/shellyfs/pkg/util"
)

// handleShellyGetStatusResult replaces the blind "probe ids 0..P" fan-out
// spec.md §9 flags as not ideal: Shelly.GetStatus's result names every
// component the device actually has ("switch:0", "input:1", ...), so the
// follow-up Switch/Input probes are issued only for ids that exist, instead
// of guessing a fixed range. Status fragments already present in the
// result are merged immediately, same as a NotifyStatus fragment would be.
func (e *Engine) handleShellyGetStatusResult(result json.RawMessage) error {
	var components map[string]json.RawMessage
	if err := json.Unmarshal(result, &components); err != nil {
		return err
	}

	for key, raw := range components {
		component, id, ok := splitComponentKey(key)
		if !ok {
			continue
		}
		switch component {
		case "switch":
			if id < 0 || id >= devcache.NSwitches {
				continue
			}
			if err := e.Cache.UpdateSwitchStatus(id, raw); err != nil {
				util.WithFields(map[string]interface{}{"id": id}).
					Warn("reconcile: failed to merge switch status from device status: " + err.Error())
			}
			if _, err := e.Send.Send("Switch.GetConfig", idParams(id)); err != nil {
				return err
			}
		case "input":
			if id < 0 || id >= devcache.NInputs {
				continue
			}
			if err := e.Cache.UpdateInputStatus(id, raw); err != nil {
				util.WithFields(map[string]interface{}{"id": id}).
					Warn("reconcile: failed to merge input status from device status: " + err.Error())
			}
			if _, err := e.Send.Send("Input.GetConfig", idParams(id)); err != nil {
				return err
			}
		}
	}
	return nil
}

func idParams(id int) json.RawMessage {
	return json.RawMessage(`{"id":` + itoaDiscover(id) + `}`)
}

func itoaDiscover(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
