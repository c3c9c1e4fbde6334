package reconcile

import (
	"encoding/json"
	"sync"

	"github.com/shellyfs/shellyfs/pkg/util"
)

// getCodeParams/getCodeResult mirror Script.GetCode's wire shapes. A result
// with Left > 0 means more chunks remain at the next offset (spec.md §9:
// pacing is gated on the device's own bytes_left, never a fixed sleep).
type getCodeParams struct {
	ID     int `json:"id"`
	Offset int `json:"offset"`
	Len    int `json:"len"`
}

type getCodeResult struct {
	Data string `json:"data"`
	Left int    `json:"left"`
}

// putCodeParams mirrors Script.PutCode's wire shape. Append is false only
// for the first chunk of a fresh upload.
type putCodeParams struct {
	ID     int    `json:"id"`
	Code   string `json:"code"`
	Append bool   `json:"append"`
}

// pendingUpload tracks one script's in-progress chunked Script.PutCode
// sequence, gated by the device's acknowledgement of each chunk rather than
// a fixed delay (spec.md §9 redesign flag).
type pendingUpload struct {
	scriptID int
	chunks   [][]byte
	next     int
}

var uploadsMu sync.Mutex
var uploads = map[int]*pendingUpload{}

// FetchScriptCode starts a chunked Script.GetCode retrieval for scriptID.
// It fails if another retrieval is already in flight (spec.md §3
// invariant 4) — callers should collapse concurrent requests for the same
// script with golang.org/x/sync/singleflight before calling this.
func (e *Engine) FetchScriptCode(scriptID int) error {
	params, _ := json.Marshal(getCodeParams{ID: scriptID, Offset: 0, Len: e.ChunkSize})
	reqID, err := e.Send.Send("Script.GetCode", params)
	if err != nil {
		return err
	}
	if err := e.Cache.BeginScriptFetch(scriptID, reqID); err != nil {
		return err
	}
	return nil
}

// handleScriptGetCodeResult processes one chunk of a Script.GetCode
// sequence: accumulates the chunk, and either requests the next chunk (left
// > 0) or finalizes the retrieval and starts fetching the next valid script
// that has no code yet (left == 0). A negative left abandons the retrieval
// without storing anything.
func (e *Engine) handleScriptGetCodeResult(params json.RawMessage, reqID int, result json.RawMessage) error {
	var p getCodeParams
	_ = json.Unmarshal(params, &p)
	var r getCodeResult
	if err := json.Unmarshal(result, &r); err != nil {
		e.Cache.AbortScriptFetch()
		return err
	}
	if r.Left < 0 {
		e.Cache.AbortScriptFetch()
		return util.NewValidationError("Script.GetCode reported a negative bytes-left count")
	}

	if err := e.Cache.ScriptCodeChunkAccumulate(reqID, []byte(r.Data)); err != nil {
		return err
	}

	if r.Left > 0 {
		next := getCodeParams{ID: p.ID, Offset: p.Offset + len(r.Data), Len: e.ChunkSize}
		nextParams, _ := json.Marshal(next)
		nextReqID, err := e.Send.Send("Script.GetCode", nextParams)
		if err != nil {
			e.Cache.AbortScriptFetch()
			return err
		}
		// Re-point the in-flight marker at the follow-up request: the
		// previous reqID is now spent, and only the newest chunk request
		// may be accumulated against.
		if err := e.Cache.AdvanceScriptFetch(reqID, nextReqID); err != nil {
			e.Cache.AbortScriptFetch()
			return err
		}
		return nil
	}

	if err := e.Cache.ScriptCodeFinalize(reqID); err != nil {
		return err
	}
	for _, s := range e.Cache.Scripts() {
		if s.Valid && !s.HasCode {
			return e.FetchScriptCode(s.ID)
		}
	}
	return nil
}

// UploadScriptCode splits code into e.ChunkSize-sized pieces and sends
// the first Script.PutCode chunk; subsequent chunks are sent only once the
// device acknowledges the previous one (spec.md §9 redesign flag: no
// sleep-based pacing).
func (e *Engine) UploadScriptCode(scriptID int, code []byte) error {
	chunks := chunkBytes(code, e.ChunkSize)
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	uploadsMu.Lock()
	uploads[scriptID] = &pendingUpload{scriptID: scriptID, chunks: chunks, next: 1}
	uploadsMu.Unlock()

	params, _ := json.Marshal(putCodeParams{ID: scriptID, Code: string(chunks[0]), Append: false})
	reqID, err := e.Send.Send("Script.PutCode", params)
	if err != nil {
		return err
	}
	return e.Cache.BeginScriptUpload(scriptID, reqID)
}

// handleScriptPutCodeResult advances a chunked upload: sends the next
// pending chunk if any remain, or completes the upload and stores the
// uploaded code into the cache.
func (e *Engine) handleScriptPutCodeResult(params json.RawMessage, reqID int) error {
	var p putCodeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}

	uploadsMu.Lock()
	up, ok := uploads[p.ID]
	uploadsMu.Unlock()
	if !ok {
		// A single-shot PutCode with no chunking in flight.
		return e.Cache.CompleteScriptUpload(p.ID, []byte(p.Code))
	}

	if up.next < len(up.chunks) {
		chunk := up.chunks[up.next]
		up.next++
		next := putCodeParams{ID: p.ID, Code: string(chunk), Append: true}
		nextParams, _ := json.Marshal(next)
		nextReqID, err := e.Send.Send("Script.PutCode", nextParams)
		if err != nil {
			return err
		}
		return e.Cache.BeginScriptUpload(p.ID, nextReqID)
	}

	var full []byte
	for _, c := range up.chunks {
		full = append(full, c...)
	}
	uploadsMu.Lock()
	delete(uploads, p.ID)
	uploadsMu.Unlock()

	if err := e.Cache.CompleteScriptUpload(p.ID, full); err != nil {
		return err
	}
	util.WithFields(map[string]interface{}{"script_id": p.ID, "req_id": reqID, "bytes": len(full)}).
		Debug("reconcile: script upload complete")

	// Reconciliation discipline (spec.md §8 scenario S4): the final PutCode
	// success triggers exactly one Script.GetCode, re-syncing the cache
	// from the device's own account of what was stored rather than trusting
	// the uploaded bytes alone.
	return e.FetchScriptCode(p.ID)
}

// chunkBytes splits data into pieces of at most size bytes each.
func chunkBytes(data []byte, size int) [][]byte {
	if size <= 0 {
		return nil
	}
	var out [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
