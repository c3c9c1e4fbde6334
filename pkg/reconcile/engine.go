// Package reconcile implements the Reconciliation Engine (spec.md §4.D): the
// component that interprets an inbound JSON-RPC frame's classified kind and
// method, and folds it into the Device State Cache. It is the only
// component that matches responses against pkg/registry's request
// bookkeeping (pkg/transport only enqueues, sends and reclaims entries) and
// the only producer of pkg/devcache mutations from device traffic.
package reconcile

import (
	"encoding/json"

	"github.com/shellyfs/shellyfs/pkg/devcache"
	"github.com/shellyfs/shellyfs/pkg/registry"
	"github.com/shellyfs/shellyfs/pkg/rpc"
	"github.com/shellyfs/shellyfs/pkg/util"
)

// Sender is the minimal outbound capability the engine needs from the
// Transport Driver: allocate and enqueue a new request, returning its id.
type Sender interface {
	Send(method string, params json.RawMessage) (id int, err error)
}

// Engine dispatches classified inbound frames to the cache's merge
// operations, and drives the chunked script fetch/upload sequences that
// need to issue their own follow-up requests.
type Engine struct {
	Cache    *devcache.DeviceCache
	Registry *registry.Registry
	Send     Sender

	// ChunkSize overrides the chunked Script.GetCode/PutCode transfer size
	// (pkg/settings.ScriptChunkSize); defaults to devcache.ScriptChunkSize.
	ChunkSize int
}

// New creates an Engine bound to the given cache, registry, and sender,
// using the default script chunk size.
func New(cache *devcache.DeviceCache, reg *registry.Registry, sender Sender) *Engine {
	return &Engine{Cache: cache, Registry: reg, Send: sender, ChunkSize: devcache.ScriptChunkSize}
}

// requestEnvelope mirrors the shape BuildRequest produced for a request this
// engine originated, so HandleResponse can recover the method and
// parameters that produced a given response.
type requestEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// HandleResponse processes a response frame matched by the registry to
// request id, dispatching on the classified method of the ORIGINAL request
// (spec.md §4.D: responses carry no method of their own).
func (e *Engine) HandleResponse(id int, frame []byte) error {
	if err := e.Registry.HandleResponse(id, frame); err != nil {
		return err
	}
	reqData, ok := e.Registry.GetRequestData(id)
	if !ok {
		return util.NewValidationError("response matched an id with no stored request")
	}
	var env requestEnvelope
	if err := json.Unmarshal(reqData, &env); err != nil {
		return err
	}
	defer e.Registry.Forget(id)

	if errMsg, hasErr := rpc.ExtractError(frame); hasErr {
		util.WithFields(map[string]interface{}{"method": env.Method, "id": id}).
			Warn("device rejected request: " + errMsg)
		if _, fetchReqID, inFlight := e.Cache.ActiveFetch(); inFlight && fetchReqID == id {
			e.Cache.AbortScriptFetch()
		}
		return nil
	}
	result, ok := rpc.ExtractResult(frame)
	if !ok {
		return nil
	}
	return e.applyResult(env.Method, env.Params, id, result)
}

// applyResult merges a successful response's result document into the
// cache, keyed by the original request's exact method and, where relevant,
// the subject id carried in its params.
func (e *Engine) applyResult(method string, params json.RawMessage, reqID int, result json.RawMessage) error {
	switch rpc.ClassifyMethod(method) {
	case rpc.MethodSysGetConfig:
		return e.Cache.UpdateSysConfigFromResult(result)

	case rpc.MethodSysSetConfig:
		_, err := e.Send.Send("Sys.GetConfig", nil)
		return err

	case rpc.MethodMQTTGetConfig:
		return e.Cache.UpdateMQTTConfigFromResult(result)

	case rpc.MethodMQTTSetConfig:
		_, err := e.Send.Send("MQTT.GetConfig", nil)
		return err

	case rpc.MethodSwitchGetConfig:
		id, _ := paramsID(params)
		return e.Cache.UpdateSwitchConfig(id, result)

	case rpc.MethodSwitchSetConfig:
		id, _ := paramsID(params)
		_, err := e.Send.Send("Switch.GetConfig", idParams(id))
		return err

	case rpc.MethodSwitchGetStatus, rpc.MethodSwitchSet:
		id, _ := paramsID(params)
		return e.Cache.UpdateSwitchStatus(id, result)

	case rpc.MethodInputGetConfig:
		id, _ := paramsID(params)
		return e.Cache.UpdateInputConfig(id, result)

	case rpc.MethodInputSetConfig:
		id, _ := paramsID(params)
		_, err := e.Send.Send("Input.GetConfig", idParams(id))
		return err

	case rpc.MethodInputGetStatus:
		id, _ := paramsID(params)
		return e.Cache.UpdateInputStatus(id, result)

	case rpc.MethodScriptList:
		return e.Cache.UpdateScriptList(result)

	case rpc.MethodScriptGetCode:
		return e.handleScriptGetCodeResult(params, reqID, result)

	case rpc.MethodScriptPutCode:
		return e.handleScriptPutCodeResult(params, reqID)

	case rpc.MethodScheduleList:
		return e.Cache.UpdateScheduleList(result)

	case rpc.MethodScheduleCreate, rpc.MethodScheduleUpdate, rpc.MethodScheduleDelete:
		// These responses only confirm acceptance and carry nothing to
		// merge; the device's authoritative schedule list is re-synced via
		// a follow-up Schedule.List.
		_, err := e.Send.Send("Schedule.List", nil)
		return err

	case rpc.MethodShellyGetStatus:
		return e.handleShellyGetStatusResult(result)

	default:
		return nil
	}
}

// HandleNotification processes an unsolicited NotifyStatus/NotifyEvent
// frame (spec.md §4.D): unlike responses, notifications are method-named
// directly and carry partial, possibly multi-component, params.
func (e *Engine) HandleNotification(frame []byte) error {
	method, _ := rpc.ExtractMethod(frame)
	params, ok := rpc.ExtractParams(frame)
	if !ok {
		return nil
	}

	switch method {
	case "NotifyStatus":
		return e.applyStatusNotification(params)
	case "NotifyEvent":
		return e.applyEventNotification(params)
	default:
		util.WithMethod(method).Debug("reconcile: ignoring unrecognized notification")
		return nil
	}
}

// notifyEventDoc mirrors NotifyEvent's params shape: {"events":[{"component":
// "mqtt","event":"config_changed"},...]}.
type notifyEventDoc struct {
	Events []struct {
		Component string `json:"component"`
		Event     string `json:"event"`
	} `json:"events"`
}

// applyEventNotification scans a NotifyEvent's events[*] for config_changed
// entries and re-fetches the affected component's config (spec.md §4.D):
// sys/mqtt re-fetch their single document, switch re-fetches every
// currently-valid switch slot. Entries that are not config_changed (script
// errors, schedule fires, input toggles) carry no persistent merge target
// in this cache and are ignored.
func (e *Engine) applyEventNotification(params json.RawMessage) error {
	var doc notifyEventDoc
	if err := json.Unmarshal(params, &doc); err != nil {
		return err
	}

	for _, ev := range doc.Events {
		if ev.Event != "config_changed" {
			continue
		}
		var err error
		switch ev.Component {
		case "sys":
			_, err = e.Send.Send("Sys.GetConfig", nil)
		case "mqtt":
			_, err = e.Send.Send("MQTT.GetConfig", nil)
		case "switch":
			for i, slot := range e.Cache.Switches() {
				if !slot.Valid {
					continue
				}
				if _, sendErr := e.Send.Send("Switch.GetConfig", idParams(i)); sendErr != nil {
					err = sendErr
					break
				}
			}
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// statusComponent is one fragment of a NotifyStatus params document, e.g.
// "switch:0": {...fields...}.
func (e *Engine) applyStatusNotification(params json.RawMessage) error {
	var fragments map[string]json.RawMessage
	if err := json.Unmarshal(params, &fragments); err != nil {
		return err
	}
	for key, raw := range fragments {
		component, id, ok := splitComponentKey(key)
		if !ok {
			continue
		}
		var err error
		switch component {
		case "switch":
			err = e.Cache.UpdateSwitchStatus(id, raw)
		case "input":
			err = e.Cache.UpdateInputStatus(id, raw)
		default:
			continue
		}
		if err != nil {
			util.WithFields(map[string]interface{}{"component": component, "id": id}).
				Warn("reconcile: failed to merge status fragment: " + err.Error())
		}
	}
	return nil
}

// splitComponentKey splits a NotifyStatus fragment key like "switch:0" into
// its component name and numeric id.
func splitComponentKey(key string) (component string, id int, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			component = key[:i]
			n := 0
			for j := i + 1; j < len(key); j++ {
				if key[j] < '0' || key[j] > '9' {
					return "", 0, false
				}
				n = n*10 + int(key[j]-'0')
			}
			return component, n, true
		}
	}
	return "", 0, false
}

// paramsID extracts the subject "id" field from a request's params
// document, defaulting to 0 if absent (single-switch/input devices omit
// it).
func paramsID(params json.RawMessage) (int, bool) {
	var v struct {
		ID int `json:"id"`
	}
	if len(params) == 0 {
		return 0, false
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return 0, false
	}
	return v.ID, true
}
