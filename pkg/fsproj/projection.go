package fsproj

import (
	"fmt"
	"sort"

	"github.com/shellyfs/shellyfs/pkg/devcache"
	"github.com/shellyfs/shellyfs/pkg/reconcile"
	"github.com/shellyfs/shellyfs/pkg/util"
)

// Projection is the Filesystem Projection (spec.md §4.E): it answers
// getattr/readdir/open/read/write/truncate/flush/release against the
// Device State Cache, submitting RPCs through the Reconciliation Engine's
// sender at flush time.
type Projection struct {
	Cache     *devcache.DeviceCache
	Engine    *reconcile.Engine
	Connected func() bool
}

// New creates a Projection bound to the given cache, engine, and transport
// connectivity probe.
func New(cache *devcache.DeviceCache, engine *reconcile.Engine, connected func() bool) *Projection {
	return &Projection{Cache: cache, Engine: engine, Connected: connected}
}

// Getattr returns the stat-equivalent attributes for path (spec.md §4.E
// "Stat"). ok is false for a path naming no resource, or a valid-looking
// path whose slot is not currently valid.
func (p *Projection) Getattr(path string) (Attr, bool) {
	res, ok := ParsePath(path)
	if !ok {
		return Attr{}, false
	}

	switch res.Kind {
	case ResRoot, ResScriptsDir, ResProcDir, ResProcSwitchDir, ResProcInputDir:
		return Attr{Kind: KindDir, Mode: ModeReadOnly}, true

	case ResProcSwitchSlotDir:
		if s, ok := p.Cache.Switch(res.Index); !ok || !s.Valid {
			return Attr{}, false
		}
		return Attr{Kind: KindDir, Mode: ModeReadOnly}, true

	case ResProcInputSlotDir:
		if in, ok := p.Cache.Input(res.Index); !ok || !in.Valid {
			return Attr{}, false
		}
		return Attr{Kind: KindDir, Mode: ModeReadOnly}, true

	default:
		content, attr, ok := renderContent(p.Cache, res)
		if !ok {
			return Attr{}, false
		}
		attr.Size = int64(len(content))
		return attr, true
	}
}

// Readdir enumerates the children of a directory path (spec.md §4.E).
// Indexed collections list only slots whose validity flag is set.
func (p *Projection) Readdir(path string) ([]string, bool) {
	res, ok := ParsePath(path)
	if !ok {
		return nil, false
	}

	switch res.Kind {
	case ResRoot:
		names := []string{"sys_config.json", "mqtt_config.json", "crontab", "scripts", "proc"}
		for _, s := range p.Cache.Switches() {
			if s.Valid {
				names = append(names, fmt.Sprintf("switch_%d_config.json", s.ID))
			}
		}
		for _, in := range p.Cache.Inputs() {
			if in.Valid {
				names = append(names, fmt.Sprintf("input_%d_config.json", in.ID))
			}
		}
		sort.Strings(names)
		return names, true

	case ResScriptsDir:
		var names []string
		for _, s := range p.Cache.Scripts() {
			if s.Valid {
				names = append(names, fmt.Sprintf("script_%d.js", s.ID))
			}
		}
		sort.Strings(names)
		return names, true

	case ResProcDir:
		return []string{"switch", "input"}, true

	case ResProcSwitchDir:
		var names []string
		for _, s := range p.Cache.Switches() {
			if s.Valid {
				names = append(names, fmt.Sprintf("%d", s.ID))
			}
		}
		sort.Strings(names)
		return names, true

	case ResProcInputDir:
		var names []string
		for _, in := range p.Cache.Inputs() {
			if in.Valid {
				names = append(names, fmt.Sprintf("%d", in.ID))
			}
		}
		sort.Strings(names)
		return names, true

	case ResProcSwitchSlotDir:
		s, ok := p.Cache.Switch(res.Index)
		if !ok || !s.Valid {
			return nil, false
		}
		return []string{"output", "id", "source", "apower", "voltage", "current", "freq", "energy", "ret_energy", "temperature"}, true

	case ResProcInputSlotDir:
		in, ok := p.Cache.Input(res.Index)
		if !ok || !in.Valid {
			return nil, false
		}
		return []string{"id", "state"}, true

	default:
		return nil, false
	}
}

// Read returns the byte range [offset, offset+size) of path's current
// content (spec.md §4.E "Read is a byte-offset projection").
func (p *Projection) Read(path string, offset int64, size int) ([]byte, error) {
	res, ok := ParsePath(path)
	if !ok {
		return nil, util.NewValidationError("no such resource")
	}
	content, _, ok := renderContent(p.Cache, res)
	if !ok {
		return nil, util.NewValidationError("resource not valid")
	}
	if offset < 0 || offset > int64(len(content)) {
		return nil, nil
	}
	end := offset + int64(size)
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return content[offset:end], nil
}
