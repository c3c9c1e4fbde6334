package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shellyfs/shellyfs/pkg/devcache"
)

// CrontabLine is one parsed line of a crontab-style schedule text file
// (spec.md §4.D, §8 scenario S3): six whitespace-separated timespec fields
// followed by a single JSON-RPC call encoded as "Method {params}".
type CrontabLine struct {
	ID       int // 0 means "not yet created on the device"
	Enable   bool
	Timespec [6]string
	Method   string
	Params   json.RawMessage
}

// ParseCrontab parses the schedules virtual file's text body into a list of
// CrontabLine entries (spec.md §4.D, §6). Three kinds of "#" lines are
// distinguished:
//
//   - "#!..." is a disabled entry: the prefix is stripped and the remainder
//     is parsed as a normal schedule line with Enable=false.
//   - "# id:<n>" is an id-binding marker: it binds the NEXT parsed line's ID
//     field to <n>, so DiffAndEmit can match it against the cache's schedule
//     list by id instead of by timespec. It does not itself produce a line.
//   - any other "#"-prefixed line is a plain comment and is skipped, along
//     with blank lines.
func ParseCrontab(text string) ([]CrontabLine, error) {
	var lines []CrontabLine
	pendingID := 0
	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		enable := true
		if strings.HasPrefix(line, "#!") {
			enable = false
			line = strings.TrimSpace(strings.TrimPrefix(line, "#!"))
			if line == "" {
				continue
			}
		} else if strings.HasPrefix(line, "#") {
			if id, ok := parseIDMarker(line); ok {
				pendingID = id
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 7 {
			return nil, fmt.Errorf("crontab line %d: expected 6 timespec fields and a call, got %d fields", lineNo+1, len(fields))
		}
		var ts [6]string
		copy(ts[:], fields[:6])

		rest := line
		for i := 0; i < 6; i++ {
			rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
			rest = rest[strings.IndexFunc(rest, unicode.IsSpace):]
		}
		method, params, err := splitCall(rest)
		if err != nil {
			return nil, fmt.Errorf("crontab line %d: %w", lineNo+1, err)
		}

		lines = append(lines, CrontabLine{ID: pendingID, Enable: enable, Timespec: ts, Method: method, Params: params})
		pendingID = 0
	}
	return lines, nil
}

// parseIDMarker reports whether line is a "# id:<n>" marker, returning the
// bound id if so.
func parseIDMarker(line string) (int, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if !strings.HasPrefix(rest, "id:") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(rest, "id:")))
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitCall splits "Method.Name {json}" into its method and raw params.
// Params may be omitted entirely for parameterless calls.
func splitCall(s string) (method string, params json.RawMessage, err error) {
	s = strings.TrimSpace(s)
	brace := strings.IndexByte(s, '{')
	if brace < 0 {
		return strings.TrimSpace(s), nil, nil
	}
	method = strings.TrimSpace(s[:brace])
	raw := strings.TrimSpace(s[brace:])
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return "", nil, fmt.Errorf("invalid params JSON: %w", err)
	}
	return method, json.RawMessage(raw), nil
}

// RenderCrontab renders the cache's current schedule list back into
// crontab text, the inverse of ParseCrontab, for reads of the schedules
// virtual file. Every entry is preceded by its "# id:<n>" binding marker, so
// a subsequent edit-and-write round-trips through DiffAndEmit's id-based
// matching instead of being re-created.
func RenderCrontab(entries []devcache.ScheduleEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "# id:%d\n", e.ID)
		if !e.Enable {
			b.WriteString("#!")
		}
		for i, f := range e.Timespec {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(f)
		}
		for _, call := range e.Calls {
			b.WriteByte(' ')
			b.WriteString(call.Method)
			if len(call.Params) > 0 {
				b.WriteByte(' ')
				b.Write(call.Params)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CrontabOp is one emitted RPC operation from DiffAndEmit.
type CrontabOp struct {
	Kind   string // "create", "update", "delete"
	ID     int
	Method string
	Params json.RawMessage
}

// DiffAndEmit compares the desired crontab lines against the cache's
// current schedule list and returns the MINIMAL set of Schedule.Create /
// Schedule.Update / Schedule.Delete operations needed to reconcile the
// device (spec.md §8 scenario S3, testable property 8): unchanged entries
// emit nothing. Matching is by bound id (CrontabLine.ID, set via ParseCrontab's
// "# id:<n>" marker), never by timespec — a line with no bound id, or one
// whose bound id the cache no longer has, is always a Create, even if its
// timespec happens to coincide with an existing entry.
func DiffAndEmit(desired []CrontabLine, current []devcache.ScheduleEntry) []CrontabOp {
	var ops []CrontabOp

	byID := make(map[int]devcache.ScheduleEntry, len(current))
	for _, e := range current {
		byID[e.ID] = e
	}
	matchedIDs := make(map[int]bool, len(current))

	for _, want := range desired {
		existing, found := byID[want.ID]
		if want.ID == 0 || !found {
			ops = append(ops, CrontabOp{
				Kind:   "create",
				Method: "Schedule.Create",
				Params: buildScheduleParams(want),
			})
			continue
		}
		matchedIDs[want.ID] = true
		if !scheduleMatches(want, existing) {
			ops = append(ops, CrontabOp{
				Kind:   "update",
				ID:     want.ID,
				Method: "Schedule.Update",
				Params: buildScheduleParams(want, want.ID),
			})
		}
	}

	for _, e := range current {
		if !matchedIDs[e.ID] {
			params, _ := json.Marshal(struct {
				ID int `json:"id"`
			}{ID: e.ID})
			ops = append(ops, CrontabOp{Kind: "delete", ID: e.ID, Method: "Schedule.Delete", Params: params})
		}
	}

	return ops
}

// scheduleMatches reports whether a desired line already matches a cached
// entry exactly (same enable flag, same timespec, same single call for now —
// the cache's schedule shape supports multiple calls, diffed by count then
// content).
func scheduleMatches(want CrontabLine, have devcache.ScheduleEntry) bool {
	if want.Enable != have.Enable {
		return false
	}
	if want.Timespec != have.Timespec {
		return false
	}
	if len(have.Calls) != 1 {
		return false
	}
	return have.Calls[0].Method == want.Method && string(have.Calls[0].Params) == string(want.Params)
}

type schedulePayload struct {
	ID       int    `json:"id,omitempty"`
	Enable   bool   `json:"enable"`
	Timespec string `json:"timespec"`
	Calls    []struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params,omitempty"`
	} `json:"calls"`
}

func buildScheduleParams(line CrontabLine, id ...int) json.RawMessage {
	var p schedulePayload
	if len(id) > 0 {
		p.ID = id[0]
	}
	p.Enable = line.Enable
	p.Timespec = strings.Join(line.Timespec[:], " ")
	p.Calls = append(p.Calls, struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params,omitempty"`
	}{Method: line.Method, Params: line.Params})
	raw, _ := json.Marshal(p)
	return raw
}
