package reconcile

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shellyfs/shellyfs/pkg/devcache"
)

// TestEnsureScriptCodeCollapsesConcurrentCallers starts two concurrent
// EnsureScriptCode calls for the same script and verifies only one
// Script.GetCode chain is actually issued.
func TestEnsureScriptCodeCollapsesConcurrentCallers(t *testing.T) {
	eng, _, sender := newTestEngine()

	var wg sync.WaitGroup
	results := make([][]byte, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = eng.EnsureScriptCode(7)
		}(i)
	}

	// Give both goroutines a chance to reach the singleflight call before
	// driving the fetch to completion.
	time.Sleep(20 * time.Millisecond)

	_, reqID, ok := eng.Cache.ActiveFetch()
	if !ok {
		t.Fatal("expected exactly one Script.GetCode fetch to be in flight")
	}
	params, _ := json.Marshal(getCodeParams{ID: 7, Offset: 0, Len: devcache.ScriptChunkSize})
	result, _ := json.Marshal(getCodeResult{Data: "print('hi')", Left: 0})
	if err := eng.handleScriptGetCodeResult(params, reqID, result); err != nil {
		t.Fatalf("handleScriptGetCodeResult: %v", err)
	}

	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnsureScriptCode[%d]: %v", i, err)
		}
		if string(results[i]) != "print('hi')" {
			t.Errorf("EnsureScriptCode[%d] = %q", i, results[i])
		}
	}

	getCodeCount := 0
	for _, m := range sender.sent {
		if m == "Script.GetCode" {
			getCodeCount++
		}
	}
	if getCodeCount != 1 {
		t.Errorf("Script.GetCode issued %d times, want 1", getCodeCount)
	}
}
