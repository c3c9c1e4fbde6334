package devcache

import (
	"encoding/json"

	"github.com/shellyfs/shellyfs/pkg/util"
)

// scriptListEntryWire mirrors one element of Script.List's result.
type scriptListEntryWire struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Enable  bool   `json:"enable"`
	Running bool   `json:"running"`
}

type scriptListWire struct {
	Scripts []scriptListEntryWire `json:"scripts"`
}

// UpdateScriptList merges a Script.List result into the scripts array.
// Slots not named in raw are marked invalid (the device deleted or never
// had that script); existing Code bodies are preserved across a list
// refresh, since Script.List never carries code.
func (c *DeviceCache) UpdateScriptList(raw json.RawMessage) error {
	var wire scriptListWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	present := make(map[int]bool, len(wire.Scripts))
	for _, e := range wire.Scripts {
		if e.ID < 0 || e.ID >= MaxScripts {
			continue // device reports a slot outside our configured bound
		}
		present[e.ID] = true
		s := &c.scripts[e.ID]
		s.Valid = true
		s.ID = e.ID
		s.Name = e.Name
		s.Enable = e.Enable
		s.Running = e.Running
		if s.LastUploadReqID == 0 {
			s.LastUploadReqID = NoUploadInFlight
		}
	}
	for i := range c.scripts {
		if !present[i] {
			c.scripts[i].Valid = false
		}
	}
	c.bumpRev()
	return nil
}

// BeginScriptFetch records a new Script.GetCode chunk sequence as the single
// in-flight retrieval (spec.md §3 invariant 4). It fails if another fetch is
// already in flight — callers must wait for ScriptCodeFinalize (or an error
// path) to clear it first.
func (c *DeviceCache) BeginScriptFetch(scriptID, reqID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetch.ReqID != NoActiveFetch {
		return util.NewValidationError("a script code retrieval is already in flight")
	}
	c.fetch = scriptFetch{ScriptID: scriptID, ReqID: reqID, Buf: nil}
	return nil
}

// ScriptCodeChunkAccumulate appends one Script.GetCode response chunk to the
// in-flight retrieval's buffer. reqID must match the id BeginScriptFetch was
// called with, so a stray late response can't corrupt an unrelated fetch. If
// the accumulated buffer would exceed MaxScriptCode, the fetch is aborted —
// the in-flight marker is cleared and the script's previously cached code is
// left untouched — and a BufferOverflowError is returned (spec.md §4.C, §7
// BufferOverflow).
func (c *DeviceCache) ScriptCodeChunkAccumulate(reqID int, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetch.ReqID != reqID {
		return util.NewValidationError("chunk does not match the in-flight retrieval")
	}
	if len(c.fetch.Buf)+len(chunk) > MaxScriptCode {
		scriptID := c.fetch.ScriptID
		c.fetch = scriptFetch{ReqID: NoActiveFetch}
		return util.NewBufferOverflowError(scriptID, MaxScriptCode)
	}
	c.fetch.Buf = append(c.fetch.Buf, chunk...)
	return nil
}

// AdvanceScriptFetch re-points the in-flight retrieval at the request id of
// the next chunk in the same sequence, without releasing the single-fetch
// slot (spec.md §3 invariant 4: it is still the SAME retrieval, just its
// next chunk). It fails if oldReqID does not match the currently in-flight
// request.
func (c *DeviceCache) AdvanceScriptFetch(oldReqID, newReqID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetch.ReqID != oldReqID {
		return util.NewValidationError("advance does not match the in-flight retrieval")
	}
	c.fetch.ReqID = newReqID
	return nil
}

// ScriptCodeFinalize completes the in-flight retrieval, storing the
// accumulated bytes into the script's Code field and clearing the in-flight
// marker back to NoActiveFetch (spec.md §3 invariant 4).
func (c *DeviceCache) ScriptCodeFinalize(reqID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetch.ReqID != reqID {
		return util.NewValidationError("finalize does not match the in-flight retrieval")
	}
	id := c.fetch.ScriptID
	if id < 0 || id >= MaxScripts {
		return util.NewValidationError("script id out of range")
	}
	s := &c.scripts[id]
	s.Code = c.fetch.Buf
	s.HasCode = true
	s.ModifyTime = now()

	c.fetch = scriptFetch{ReqID: NoActiveFetch}
	c.bumpRev()
	return nil
}

// AbortScriptFetch clears the in-flight marker without storing anything,
// used when a Script.GetCode chunk request errors or times out mid-sequence.
func (c *DeviceCache) AbortScriptFetch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetch = scriptFetch{ReqID: NoActiveFetch}
}

// BeginScriptUpload records reqID as the request id of the most recently
// sent chunk of an in-progress Script.PutCode upload for slot id; it is
// called once per chunk, so once the final chunk is sent it holds that
// chunk's id (spec.md §3 invariant 5).
func (c *DeviceCache) BeginScriptUpload(id, reqID int) error {
	if id < 0 || id >= MaxScripts {
		return util.NewValidationError("script id out of range")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[id].LastUploadReqID = reqID
	return nil
}

// CompleteScriptUpload stores the uploaded code locally once the device has
// acknowledged the final Script.PutCode chunk, and clears the upload marker.
func (c *DeviceCache) CompleteScriptUpload(id int, code []byte) error {
	if id < 0 || id >= MaxScripts {
		return util.NewValidationError("script id out of range")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.scripts[id]
	s.Code = code
	s.HasCode = true
	s.ModifyTime = now()
	s.LastUploadReqID = NoUploadInFlight
	c.bumpRev()
	return nil
}
