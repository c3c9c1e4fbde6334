package devcache

import (
	"errors"
	"testing"

	"github.com/shellyfs/shellyfs/pkg/util"
)

func TestUpdateScriptList(t *testing.T) {
	c := New()
	raw := []byte(`{"scripts":[{"id":0,"name":"boost","enable":true,"running":true},{"id":1,"name":"cool","enable":false,"running":false}]}`)
	if err := c.UpdateScriptList(raw); err != nil {
		t.Fatalf("UpdateScriptList: %v", err)
	}
	s0, _ := c.Script(0)
	if !s0.Valid || s0.Name != "boost" || !s0.Running {
		t.Errorf("script 0 = %+v", s0)
	}
	s2, _ := c.Script(2)
	if s2.Valid {
		t.Error("script 2 should be invalid (not in the list)")
	}
}

func TestUpdateScriptListInvalidatesRemovedSlots(t *testing.T) {
	c := New()
	_ = c.UpdateScriptList([]byte(`{"scripts":[{"id":0,"name":"a"},{"id":1,"name":"b"}]}`))
	_ = c.UpdateScriptList([]byte(`{"scripts":[{"id":0,"name":"a"}]}`))
	s1, _ := c.Script(1)
	if s1.Valid {
		t.Error("script 1 should become invalid once absent from a later list")
	}
}

// TestScriptFetchSingleInFlight enforces spec.md §3 invariant 4: at most
// one script code retrieval in flight at a time.
func TestScriptFetchSingleInFlight(t *testing.T) {
	c := New()
	if err := c.BeginScriptFetch(0, 10); err != nil {
		t.Fatalf("BeginScriptFetch: %v", err)
	}
	if err := c.BeginScriptFetch(1, 11); err == nil {
		t.Fatal("a second concurrent BeginScriptFetch should fail")
	}
	if _, _, ok := c.ActiveFetch(); !ok {
		t.Fatal("ActiveFetch should report the in-flight retrieval")
	}

	if err := c.ScriptCodeChunkAccumulate(10, []byte("let x = ")); err != nil {
		t.Fatalf("ScriptCodeChunkAccumulate: %v", err)
	}
	if err := c.ScriptCodeChunkAccumulate(10, []byte("1;")); err != nil {
		t.Fatalf("ScriptCodeChunkAccumulate: %v", err)
	}
	if err := c.ScriptCodeFinalize(10); err != nil {
		t.Fatalf("ScriptCodeFinalize: %v", err)
	}

	s, _ := c.Script(0)
	if !s.HasCode || string(s.Code) != "let x = 1;" {
		t.Errorf("Code = %q, want \"let x = 1;\"", s.Code)
	}
	if _, _, ok := c.ActiveFetch(); ok {
		t.Error("ActiveFetch should report none after finalize")
	}

	// The slot is now free again.
	if err := c.BeginScriptFetch(1, 20); err != nil {
		t.Fatalf("BeginScriptFetch after finalize: %v", err)
	}
}

func TestAdvanceScriptFetch(t *testing.T) {
	c := New()
	_ = c.BeginScriptFetch(0, 10)
	_ = c.ScriptCodeChunkAccumulate(10, []byte("part1"))
	if err := c.AdvanceScriptFetch(10, 11); err != nil {
		t.Fatalf("AdvanceScriptFetch: %v", err)
	}
	if err := c.ScriptCodeChunkAccumulate(10, []byte("stale")); err == nil {
		t.Fatal("chunk against the old reqID should be rejected after advance")
	}
	if err := c.ScriptCodeChunkAccumulate(11, []byte("part2")); err != nil {
		t.Fatalf("ScriptCodeChunkAccumulate after advance: %v", err)
	}
	if err := c.ScriptCodeFinalize(11); err != nil {
		t.Fatalf("ScriptCodeFinalize: %v", err)
	}
	s, _ := c.Script(0)
	if string(s.Code) != "part1part2" {
		t.Errorf("Code = %q, want \"part1part2\"", s.Code)
	}
}

func TestAdvanceScriptFetchRejectsMismatch(t *testing.T) {
	c := New()
	_ = c.BeginScriptFetch(0, 10)
	if err := c.AdvanceScriptFetch(999, 11); err == nil {
		t.Fatal("AdvanceScriptFetch with mismatched oldReqID should fail")
	}
}

func TestScriptCodeChunkAccumulateRejectsStaleReqID(t *testing.T) {
	c := New()
	_ = c.BeginScriptFetch(0, 10)
	if err := c.ScriptCodeChunkAccumulate(999, []byte("x")); err == nil {
		t.Fatal("chunk with mismatched reqID should be rejected")
	}
}

// TestScriptCodeChunkAccumulateRejectsOverflow enforces spec.md §4.C/§7
// BufferOverflow: a chunk that would push the in-flight buffer past
// MaxScriptCode aborts the fetch and leaves the script's prior cached code
// untouched, rather than finalizing a truncated or oversized body.
func TestScriptCodeChunkAccumulateRejectsOverflow(t *testing.T) {
	c := New()
	_ = c.UpdateScriptList([]byte(`{"scripts":[{"id":0,"name":"a"}]}`))
	_ = c.BeginScriptFetch(0, 10)
	_ = c.ScriptCodeChunkAccumulate(10, []byte("old code"))
	_ = c.ScriptCodeFinalize(10)

	_ = c.BeginScriptFetch(0, 20)
	huge := make([]byte, MaxScriptCode+1)
	err := c.ScriptCodeChunkAccumulate(20, huge)
	if err == nil {
		t.Fatal("expected a buffer overflow error")
	}
	var overflow *util.BufferOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("error = %v, want *util.BufferOverflowError", err)
	}
	if !errors.Is(err, util.ErrBufferOverflow) {
		t.Error("error should unwrap to util.ErrBufferOverflow")
	}

	if _, _, ok := c.ActiveFetch(); ok {
		t.Error("ActiveFetch should report none after an overflow abort")
	}
	s, _ := c.Script(0)
	if string(s.Code) != "old code" {
		t.Errorf("Code = %q, want prior cached code \"old code\" preserved", s.Code)
	}
}

func TestAbortScriptFetchClearsInFlight(t *testing.T) {
	c := New()
	_ = c.BeginScriptFetch(0, 10)
	c.AbortScriptFetch()
	if _, _, ok := c.ActiveFetch(); ok {
		t.Fatal("ActiveFetch should report none after abort")
	}
	if err := c.BeginScriptFetch(0, 11); err != nil {
		t.Fatalf("BeginScriptFetch after abort: %v", err)
	}
}

// TestScriptUploadInFlightMarker enforces spec.md §3 invariant 5: the slot
// tracks the request id of the final in-flight upload chunk, or
// NoUploadInFlight.
func TestScriptUploadInFlightMarker(t *testing.T) {
	c := New()
	s, _ := c.Script(0)
	if s.LastUploadReqID != 0 {
		t.Fatalf("fresh slot LastUploadReqID = %d, want 0 (zero value)", s.LastUploadReqID)
	}

	if err := c.BeginScriptUpload(0, 42); err != nil {
		t.Fatalf("BeginScriptUpload: %v", err)
	}
	s, _ = c.Script(0)
	if s.LastUploadReqID != 42 {
		t.Errorf("LastUploadReqID = %d, want 42", s.LastUploadReqID)
	}

	if err := c.CompleteScriptUpload(0, []byte("code")); err != nil {
		t.Fatalf("CompleteScriptUpload: %v", err)
	}
	s, _ = c.Script(0)
	if s.LastUploadReqID != NoUploadInFlight {
		t.Errorf("LastUploadReqID after complete = %d, want %d", s.LastUploadReqID, NoUploadInFlight)
	}
	if string(s.Code) != "code" {
		t.Errorf("Code = %q", s.Code)
	}
}

func TestScriptOutOfRange(t *testing.T) {
	c := New()
	if err := c.BeginScriptUpload(MaxScripts, 1); err == nil {
		t.Fatal("expected error for out-of-range script id")
	}
	if err := c.CompleteScriptUpload(-1, nil); err == nil {
		t.Fatal("expected error for out-of-range script id")
	}
}
