package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/shellyfs/shellyfs/pkg/devcache"
)

func TestParseCrontab(t *testing.T) {
	text := "0 30 6 * * * Switch.Set {\"id\":0,\"on\":true}\n#! 0 0 22 * * * Switch.Set {\"id\":0,\"on\":false}\n"
	lines, err := ParseCrontab(text)
	if err != nil {
		t.Fatalf("ParseCrontab: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if !lines[0].Enable {
		t.Error("first line should be enabled")
	}
	if lines[1].Enable {
		t.Error("second line (#!-prefixed) should be disabled")
	}
	if lines[0].Method != "Switch.Set" {
		t.Errorf("Method = %q", lines[0].Method)
	}
	want := [6]string{"0", "30", "6", "*", "*", "*"}
	if lines[0].Timespec != want {
		t.Errorf("Timespec = %v, want %v", lines[0].Timespec, want)
	}
}

func TestParseCrontabRejectsShortLine(t *testing.T) {
	if _, err := ParseCrontab("0 30 6 * *\n"); err == nil {
		t.Fatal("expected an error for a line missing timespec fields and a call")
	}
}

func TestParseCrontabSkipsPlainComments(t *testing.T) {
	text := "# just a note, not a schedule\n\n0 30 6 * * * Switch.Set {\"id\":0,\"on\":true}\n"
	lines, err := ParseCrontab(text)
	if err != nil {
		t.Fatalf("ParseCrontab: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	if lines[0].ID != 0 {
		t.Errorf("ID = %d, want 0 (no marker preceded this line)", lines[0].ID)
	}
}

func TestParseCrontabBindsIDMarkerToNextLine(t *testing.T) {
	text := "# id:7\n0 30 6 * * * Switch.Set {\"id\":0,\"on\":true}\n0 0 12 * * * Switch.Set {\"id\":0,\"on\":false}\n"
	lines, err := ParseCrontab(text)
	if err != nil {
		t.Fatalf("ParseCrontab: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	if lines[0].ID != 7 {
		t.Errorf("lines[0].ID = %d, want 7", lines[0].ID)
	}
	if lines[1].ID != 0 {
		t.Errorf("lines[1].ID = %d, want 0 (marker only binds the next line)", lines[1].ID)
	}
}

func TestParseCrontabDisabledWithIDMarker(t *testing.T) {
	text := "# id:3\n#! 0 0 22 * * * Switch.Set {\"id\":0,\"on\":false}\n"
	lines, err := ParseCrontab(text)
	if err != nil {
		t.Fatalf("ParseCrontab: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("len(lines) = %d, want 1", len(lines))
	}
	if lines[0].ID != 3 {
		t.Errorf("ID = %d, want 3", lines[0].ID)
	}
	if lines[0].Enable {
		t.Error("expected #!-prefixed line to be disabled")
	}
}

// TestScenarioS3 implements spec.md §8 scenario S3: diffing desired
// crontab lines against the cache's current schedule list emits only the
// minimal operations needed — unchanged entries emit nothing.
func TestScenarioS3(t *testing.T) {
	onParams := json.RawMessage(`{"id":0,"on":true}`)
	offParams := json.RawMessage(`{"id":0,"on":false}`)

	current := []devcache.ScheduleEntry{
		{
			ID:       1,
			Enable:   true,
			Timespec: [6]string{"0", "30", "6", "*", "*", "*"},
			Calls:    []devcache.ScheduleCall{{Method: "Switch.Set", Params: onParams}},
		},
		{
			ID:       2,
			Enable:   true,
			Timespec: [6]string{"0", "0", "22", "*", "*", "*"},
			Calls:    []devcache.ScheduleCall{{Method: "Switch.Set", Params: offParams}},
		},
	}

	desired := []CrontabLine{
		// Unchanged: bound to id 1, matches current[0] exactly.
		{ID: 1, Enable: true, Timespec: [6]string{"0", "30", "6", "*", "*", "*"}, Method: "Switch.Set", Params: onParams},
		// Changed enable flag vs current[1], bound to id 2.
		{ID: 2, Enable: false, Timespec: [6]string{"0", "0", "22", "*", "*", "*"}, Method: "Switch.Set", Params: offParams},
		// Brand new entry: no bound id.
		{Enable: true, Timespec: [6]string{"0", "0", "12", "*", "*", "*"}, Method: "Switch.Set", Params: onParams},
	}

	ops := DiffAndEmit(desired, current)

	var creates, updates, deletes int
	for _, op := range ops {
		switch op.Kind {
		case "create":
			creates++
		case "update":
			updates++
			if op.ID != 2 {
				t.Errorf("update targeted id %d, want 2", op.ID)
			}
		case "delete":
			deletes++
		}
	}
	if creates != 1 || updates != 1 || deletes != 0 {
		t.Fatalf("ops = %+v, want 1 create, 1 update, 0 deletes", ops)
	}
}

func TestDiffAndEmitDeletesMissingEntries(t *testing.T) {
	current := []devcache.ScheduleEntry{
		{ID: 9, Enable: true, Timespec: [6]string{"0", "0", "0", "*", "*", "*"}, Calls: []devcache.ScheduleCall{{Method: "Switch.Set"}}},
	}
	ops := DiffAndEmit(nil, current)
	if len(ops) != 1 || ops[0].Kind != "delete" || ops[0].ID != 9 {
		t.Fatalf("ops = %+v, want a single delete of id 9", ops)
	}
}

func TestRenderCrontabRoundTrips(t *testing.T) {
	entries := []devcache.ScheduleEntry{
		{
			ID:       5,
			Enable:   true,
			Timespec: [6]string{"0", "30", "6", "*", "*", "*"},
			Calls:    []devcache.ScheduleCall{{Method: "Switch.Set", Params: json.RawMessage(`{"id":0,"on":true}`)}},
		},
	}
	text := RenderCrontab(entries)
	lines, err := ParseCrontab(text)
	if err != nil {
		t.Fatalf("ParseCrontab(RenderCrontab(...)): %v", err)
	}
	if len(lines) != 1 || lines[0].Method != "Switch.Set" {
		t.Fatalf("round trip lines = %+v", lines)
	}
	if lines[0].ID != 5 {
		t.Errorf("round-tripped ID = %d, want 5 (RenderCrontab must emit an '# id:<n>' marker)", lines[0].ID)
	}
}

// TestDiffAndEmitModifyTimespecIsSingleUpdate implements spec.md §8 testable
// property 8: editing a bound entry's timespec must emit exactly one Update,
// never a Create+Delete pair — bound-id matching must win over any
// coincidental timespec comparison.
func TestDiffAndEmitModifyTimespecIsSingleUpdate(t *testing.T) {
	onParams := json.RawMessage(`{"id":0,"on":true}`)
	current := []devcache.ScheduleEntry{
		{
			ID:       4,
			Enable:   true,
			Timespec: [6]string{"0", "30", "6", "*", "*", "*"},
			Calls:    []devcache.ScheduleCall{{Method: "Switch.Set", Params: onParams}},
		},
	}
	desired := []CrontabLine{
		// Same bound id, timespec moved to noon.
		{ID: 4, Enable: true, Timespec: [6]string{"0", "0", "12", "*", "*", "*"}, Method: "Switch.Set", Params: onParams},
	}

	ops := DiffAndEmit(desired, current)
	if len(ops) != 1 {
		t.Fatalf("ops = %+v, want exactly 1 op", ops)
	}
	if ops[0].Kind != "update" || ops[0].ID != 4 {
		t.Fatalf("ops[0] = %+v, want a single update of id 4", ops[0])
	}
}

// TestDiffAndEmitUnboundEntryCreatesEvenOnTimespecCollision guards against a
// regression to timespec-keyed matching: an unbound line is always a
// Create, even when its timespec happens to match an existing entry.
func TestDiffAndEmitUnboundEntryCreatesEvenOnTimespecCollision(t *testing.T) {
	current := []devcache.ScheduleEntry{
		{
			ID:       1,
			Enable:   true,
			Timespec: [6]string{"0", "30", "6", "*", "*", "*"},
			Calls:    []devcache.ScheduleCall{{Method: "Switch.Set"}},
		},
	}
	desired := []CrontabLine{
		{Enable: true, Timespec: [6]string{"0", "30", "6", "*", "*", "*"}, Method: "Switch.Set"},
	}

	ops := DiffAndEmit(desired, current)
	var creates, deletes int
	for _, op := range ops {
		switch op.Kind {
		case "create":
			creates++
		case "delete":
			deletes++
		}
	}
	if creates != 1 || deletes != 1 {
		t.Fatalf("ops = %+v, want 1 create + 1 delete (unbound line never matches by timespec)", ops)
	}
}
