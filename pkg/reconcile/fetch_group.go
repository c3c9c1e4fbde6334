package reconcile

import (
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// fetchGroup collapses concurrent callers asking for the same script's code
// into a single in-flight Script.GetCode chunk sequence, so two readers
// opening the same script file at once don't race two fetches against
// devcache's single-retrieval invariant (spec.md §3 invariant 4).
var fetchGroup singleflight.Group

// pollInterval is how often EnsureScriptCode polls the cache for fetch
// completion while a chunk sequence is in flight.
const pollInterval = 10 * time.Millisecond

// EnsureScriptCode returns scriptID's code, starting a fetch if none is
// cached yet and no fetch is in flight, then blocking the caller until the
// fetch in flight (started by this call or a concurrent one) ends. If that
// fetch belongs to another script, or ends without storing code, it
// returns whatever code the slot then holds, which may be none.
func (e *Engine) EnsureScriptCode(scriptID int) ([]byte, error) {
	slot, ok := e.Cache.Script(scriptID)
	if ok && slot.HasCode {
		return slot.Code, nil
	}

	key := fmt.Sprintf("script-fetch:%d", scriptID)
	_, err, _ := fetchGroup.Do(key, func() (interface{}, error) {
		if _, _, inFlight := e.Cache.ActiveFetch(); !inFlight {
			if err := e.FetchScriptCode(scriptID); err != nil {
				return nil, err
			}
		}
		return nil, e.waitForFetch(scriptID)
	})
	if err != nil {
		return nil, err
	}

	slot, _ = e.Cache.Script(scriptID)
	return slot.Code, nil
}

// waitForFetch blocks until scriptID's code arrives or no fetch is in
// flight anymore (the transport loop drives the actual chunk exchange via
// HandleResponse; this just observes cache state).
func (e *Engine) waitForFetch(scriptID int) error {
	for {
		if slot, ok := e.Cache.Script(scriptID); ok && slot.HasCode {
			return nil
		}
		if _, _, inFlight := e.Cache.ActiveFetch(); !inFlight {
			return nil
		}
		time.Sleep(pollInterval)
	}
}
