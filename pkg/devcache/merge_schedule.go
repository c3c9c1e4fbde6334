package devcache

import "encoding/json"

// scheduleCallWire mirrors one element of a schedule entry's calls list.
type scheduleCallWire struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// scheduleEntryWire mirrors one element of Schedule.List's result.
type scheduleEntryWire struct {
	ID       int                `json:"id"`
	Enable   bool               `json:"enable"`
	Timespec string             `json:"timespec"`
	Calls    []scheduleCallWire `json:"calls"`
}

type scheduleListWire struct {
	Jobs []scheduleEntryWire `json:"jobs"`
	Rev  uint64              `json:"rev"`
}

// splitCrontab splits a 6-field crontab timespec (sec min hour dom month
// dow) into its fields, left-padding with "*" if the device returned fewer.
func splitCrontab(spec string) [6]string {
	var out [6]string
	for i := range out {
		out[i] = "*"
	}
	fields := 0
	start := 0
	for i := 0; i <= len(spec); i++ {
		if i == len(spec) || spec[i] == ' ' {
			if i > start && fields < 6 {
				out[fields] = spec[start:i]
				fields++
			}
			start = i + 1
		}
	}
	return out
}

// UpdateScheduleList merges a Schedule.List result into the cached schedule
// collection, replacing it wholesale (Schedule.List is always a full
// snapshot, unlike Switch/Input status which can arrive as fragments), and
// records the result's "rev" field as the schedule list's device-authoritative
// revision (spec.md §3 invariant 6: never decreases — a stale or out-of-order
// response reporting a lower rev than already cached leaves it unchanged).
func (c *DeviceCache) UpdateScheduleList(raw json.RawMessage) error {
	var wire scheduleListWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	entries := make([]ScheduleEntry, 0, len(wire.Jobs))
	for _, j := range wire.Jobs {
		if len(entries) >= MaxSchedules {
			break
		}
		calls := make([]ScheduleCall, 0, len(j.Calls))
		for _, call := range j.Calls {
			if len(calls) >= MaxScheduleCalls {
				break
			}
			calls = append(calls, ScheduleCall{Method: call.Method, Params: call.Params})
		}
		entries = append(entries, ScheduleEntry{
			ID:       j.ID,
			Enable:   j.Enable,
			Timespec: splitCrontab(j.Timespec),
			Calls:    calls,
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedules = entries
	if wire.Rev > c.scheduleRev {
		c.scheduleRev = wire.Rev
	}
	c.bumpRev()
	return nil
}
