// Package transport implements the Transport Driver (spec.md §4.F): the
// component that owns the WebSocket connection to the device, drains the
// Request Registry's outbound queue onto the wire, and routes every
// inbound frame to the Reconciliation Engine. It is the only package that
// imports gorilla/websocket.
package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/shellyfs/shellyfs/pkg/auditlog"
	"github.com/shellyfs/shellyfs/pkg/devcache"
	"github.com/shellyfs/shellyfs/pkg/reconcile"
	"github.com/shellyfs/shellyfs/pkg/registry"
	"github.com/shellyfs/shellyfs/pkg/rpc"
	"github.com/shellyfs/shellyfs/pkg/util"
)

// rehydrationMethods are the unconditional calls issued on connect, before
// the device's own component inventory (from Shelly.GetStatus) drives the
// per-switch/per-input follow-up probes (spec.md §4.F, redesigned per
// spec.md §9's note: "a rewrite should query authoritative counts first
// and fan out exactly that many" — see pkg/reconcile's
// handleShellyGetStatusResult for the discovery-driven fan-out that
// replaces the original "probe 0..3" blind loop).
var rehydrationMethods = []string{
	"Sys.GetConfig", "MQTT.GetConfig", "Script.List", "Schedule.List", "Shelly.GetStatus",
}

// pollInterval is the driver's tick rate: how often it drains the outbound
// queue and polls for an inbound frame.
const pollInterval = 50 * time.Millisecond

// cleanupEvery is how many ticks elapse between Registry.CleanupTimeouts
// calls (spec.md §4.F: "once per ~10 ticks").
const cleanupEvery = 10

// Driver owns the WebSocket connection and runs the event loop described
// in spec.md §4.F. It is the one logical actor in spec.md §5 that mutates
// the cache via frame handling rather than via a filesystem call.
type Driver struct {
	URL      string
	Registry *registry.Registry
	Engine   *reconcile.Engine
	Cache    *devcache.DeviceCache

	// RehydrationConcurrency bounds how many rehydration calls are built
	// and enqueued concurrently at connect time (pkg/settings's
	// RehydrationConcurrency); defaults to 3.
	RehydrationConcurrency int

	conn      *websocket.Conn
	connected bool

	// enqueueMu makes Peek-then-Add atomic across concurrent callers (the
	// rehydration fan-out's errgroup goroutines, and any later caller
	// racing the engine's own follow-up Sends) — spec.md §4.B's contract
	// that the peeked id always matches the id Add actually assigns only
	// holds if nothing else can Add in between.
	enqueueMu sync.Mutex
}

// New creates a Driver bound to the given device URL, registry, and cache.
// The Engine field is set separately (see SetEngine): the engine's Sender
// is the driver itself, so the two must be constructed in two steps —
// Driver first, then Engine with the driver as its Sender, then
// SetEngine to close the loop. cmd/shellyfsd performs exactly this wiring.
func New(deviceURL string, reg *registry.Registry, cache *devcache.DeviceCache) *Driver {
	return &Driver{URL: deviceURL, Registry: reg, Cache: cache, RehydrationConcurrency: defaultRehydrationConcurrency}
}

// defaultRehydrationConcurrency is used when RehydrationConcurrency is left
// at its zero value (e.g. a Driver built directly as a struct literal, as
// the tests in this package do).
const defaultRehydrationConcurrency = 3

// SetEngine binds the Reconciliation Engine this driver routes inbound
// frames to. Must be called before Run.
func (d *Driver) SetEngine(eng *reconcile.Engine) {
	d.Engine = eng
}

// Connected reports whether the driver currently holds an open WebSocket
// connection. pkg/fsproj's Flush path consults this (via the Connected
// func it is given at construction) before emitting any RPC.
func (d *Driver) Connected() bool {
	return d.connected
}

// Run dials the device, performs the rehydration sequence, and then runs
// the poll loop until ctx is cancelled or a read/write error occurs.
// Per spec.md §7's propagation policy, a transport-level error causes the
// loop to return rather than silently retry — auto-reconnect is out of
// scope.
func (d *Driver) Run(ctx context.Context) error {
	if _, err := url.Parse(d.URL); err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return err
	}
	d.conn = conn
	d.connected = true
	start := time.Now()
	auditlog.Log(auditlog.NewEvent(d.URL, "connect").WithSuccess())
	defer func() {
		d.connected = false
		conn.Close()
		auditlog.Log(auditlog.NewEvent(d.URL, string(auditlog.EventTypeDisconnect)).
			WithDuration(time.Since(start)).WithSuccess())
	}()

	if err := d.rehydrate(ctx); err != nil {
		util.WithFields(map[string]interface{}{"err": err.Error()}).Warn("transport: rehydration sequence did not fully enqueue")
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return d.pollLoop(ctx)
}

// rehydrate issues the initial state-sync sequence spec.md §4.F describes:
// Sys.GetConfig, MQTT.GetConfig, Script.List, Schedule.List, and
// Shelly.GetStatus. The errgroup bounds how many of these build+enqueue
// calls run concurrently; it does not reorder the wire —
// Registry.GetNextToSend still drains in FIFO id order regardless of which
// goroutine called Add first (spec.md §5 "outbound RPCs preserve their
// registration order"). The per-switch/per-input follow-up probes are not
// fired here: they are driven by the Reconciliation Engine once the
// Shelly.GetStatus response names which components actually exist.
func (d *Driver) rehydrate(ctx context.Context) error {
	limit := d.RehydrationConcurrency
	if limit <= 0 {
		limit = defaultRehydrationConcurrency
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, method := range rehydrationMethods {
		method := method
		g.Go(func() error {
			_, err := d.enqueue(method, nil)
			return err
		})
	}
	return g.Wait()
}

// enqueue builds a request and adds it to the registry, returning its id.
// It does not write to the wire — the poll loop drains QUEUED entries on
// its own schedule, per spec.md §4.F.
func (d *Driver) enqueue(method string, params json.RawMessage) (int, error) {
	d.enqueueMu.Lock()
	defer d.enqueueMu.Unlock()

	id := d.Registry.PeekNextID()
	raw, err := rpc.BuildRequest(method, id, params)
	if err != nil {
		return 0, err
	}
	return d.Registry.Add(raw)
}

// Send implements reconcile.Sender: it lets the engine originate follow-up
// requests (chunked script fetch/upload, crontab sync) through the same
// registry the driver drains.
func (d *Driver) Send(method string, params json.RawMessage) (int, error) {
	return d.enqueue(method, params)
}

func itoa(n int) string {
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

// pollLoop drains the outbound queue, reads inbound frames, and periodically
// reclaims timed-out requests, until ctx is cancelled or the connection
// errors (spec.md §4.F, §5).
func (d *Driver) pollLoop(ctx context.Context) error {
	ticks := 0
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	inbound := make(chan []byte, 64)
	readErrs := make(chan error, 1)
	go d.readLoop(inbound, readErrs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrs:
			return err
		case frame := <-inbound:
			d.routeFrame(frame)
		case <-ticker.C:
			if err := d.drainOutbound(); err != nil {
				return err
			}
			ticks++
			if ticks%cleanupEvery == 0 {
				for _, id := range d.Registry.CleanupTimeouts(time.Now()) {
					if _, fetchReqID, inFlight := d.Cache.ActiveFetch(); inFlight && fetchReqID == id {
						d.Cache.AbortScriptFetch()
					}
					d.Registry.Forget(id)
				}
			}
		}
	}
}

// readLoop continuously reads frames off the WebSocket and forwards them,
// reporting the first read error (connection closed or protocol error) and
// then exiting.
func (d *Driver) readLoop(out chan<- []byte, errs chan<- error) {
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		out <- data
	}
}

// drainOutbound sends every currently QUEUED registry entry, in FIFO order,
// marking each sent as it goes (spec.md §4.F).
func (d *Driver) drainOutbound() error {
	for {
		id, payload, ok := d.Registry.GetNextToSend()
		if !ok {
			return nil
		}
		if err := d.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return err
		}
		if err := d.Registry.MarkSent(id); err != nil {
			util.WithRequest(id).Warn("transport: MarkSent failed after send: " + err.Error())
		}
	}
}

// routeFrame classifies one inbound frame and dispatches it to the engine,
// logging and dropping anything malformed (spec.md §4.A, §4.D).
func (d *Driver) routeFrame(frame []byte) {
	kind, err := rpc.Classify(frame)
	if err != nil {
		util.WithFields(map[string]interface{}{"err": err.Error()}).Warn("transport: malformed frame")
		return
	}
	switch kind {
	case rpc.KindResponse:
		id, ok := rpc.ExtractID(frame)
		if !ok {
			util.Warn("transport: response frame carries no id")
			return
		}
		if err := d.Engine.HandleResponse(id, frame); err != nil {
			util.WithRequest(id).Warn("transport: HandleResponse failed: " + err.Error())
		}
	case rpc.KindNotification:
		if err := d.Engine.HandleNotification(frame); err != nil {
			util.Warn("transport: HandleNotification failed: " + err.Error())
		}
	default:
		util.Warn("transport: dropping malformed/unsupported frame")
	}
}
