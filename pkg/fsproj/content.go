package fsproj

import (
	"strconv"
	"time"

	"github.com/shellyfs/shellyfs/pkg/devcache"
	"github.com/shellyfs/shellyfs/pkg/reconcile"
)

// renderContent computes the current byte content the projection reports
// for a resource's Read, and the mtime Stat should report alongside it
// (spec.md §4.E "Stat", "Read").
func renderContent(cache *devcache.DeviceCache, res Resource) ([]byte, Attr, bool) {
	switch res.Kind {
	case ResSysConfig:
		doc := cache.SysConfig()
		return doc.Raw, Attr{Kind: KindFile, Mode: ModeReadWrite, Size: int64(len(doc.Raw)), Mtime: doc.LastUpdate}, true

	case ResMQTTConfig:
		doc := cache.MQTTConfig()
		return doc.Raw, Attr{Kind: KindFile, Mode: ModeReadWrite, Size: int64(len(doc.Raw)), Mtime: doc.LastUpdate}, true

	case ResCrontab:
		text := reconcile.RenderCrontab(cache.Schedules())
		return []byte(text), Attr{Kind: KindFile, Mode: ModeReadWrite, Size: int64(len(text))}, true

	case ResSwitchConfig:
		s, ok := cache.Switch(res.Index)
		if !ok || !s.Valid {
			return nil, Attr{}, false
		}
		return s.Config.Raw, Attr{Kind: KindFile, Mode: ModeReadWrite, Size: int64(len(s.Config.Raw)), Mtime: s.Config.LastUpdate}, true

	case ResInputConfig:
		in, ok := cache.Input(res.Index)
		if !ok || !in.Valid {
			return nil, Attr{}, false
		}
		return in.Config.Raw, Attr{Kind: KindFile, Mode: ModeReadWrite, Size: int64(len(in.Config.Raw)), Mtime: in.Config.LastUpdate}, true

	case ResScriptFile:
		s, ok := cache.Script(res.Index)
		if !ok || !s.Valid {
			return nil, Attr{}, false
		}
		return s.Code, Attr{Kind: KindFile, Mode: ModeReadWrite, Size: int64(len(s.Code)), Mtime: s.ModifyTime}, true

	case ResProcSwitchOutput:
		s, ok := cache.Switch(res.Index)
		if !ok || !s.Valid {
			return nil, Attr{}, false
		}
		return []byte(boolText(s.Status.Output)), Attr{Kind: KindFile, Mode: ModeReadWrite, Size: boolSize(s.Status.Output), Mtime: s.Timestamps.Output}, true

	case ResProcSwitchScalar:
		s, ok := cache.Switch(res.Index)
		if !ok || !s.Valid {
			return nil, Attr{}, false
		}
		text, mtime := switchScalarText(s, res.Field)
		return []byte(text), Attr{Kind: KindFile, Mode: ModeReadOnly, Size: int64(len(text)), Mtime: mtime}, true

	case ResProcInputScalar:
		in, ok := cache.Input(res.Index)
		if !ok || !in.Valid {
			return nil, Attr{}, false
		}
		text, mtime := inputScalarText(in, res.Field)
		return []byte(text), Attr{Kind: KindFile, Mode: ModeReadOnly, Size: int64(len(text)), Mtime: mtime}, true

	default:
		return nil, Attr{}, false
	}
}

func boolText(b bool) string {
	if b {
		return "true\n"
	}
	return "false\n"
}

func boolSize(b bool) int64 {
	return int64(len(boolText(b)))
}

func switchScalarText(s devcache.SwitchSlot, field string) (string, time.Time) {
	switch field {
	case "id":
		return strconv.Itoa(s.Status.ID) + "\n", s.Timestamps.ID
	case "source":
		return s.Status.Source + "\n", s.Timestamps.Source
	case "apower":
		return formatFloat(s.Status.APower), s.Timestamps.APower
	case "voltage":
		return formatFloat(s.Status.Voltage), s.Timestamps.Voltage
	case "current":
		return formatFloat(s.Status.Current), s.Timestamps.Current
	case "freq":
		return formatFloat(s.Status.Frequency), s.Timestamps.Frequency
	case "energy":
		return formatFloat(s.Status.Energy), s.Timestamps.Energy
	case "ret_energy":
		return formatFloat(s.Status.RetEnergy), s.Timestamps.RetEnergy
	case "temperature":
		return formatFloat(s.Status.Temperature), s.Timestamps.Temperature
	default:
		return "", time.Time{}
	}
}

func inputScalarText(in devcache.InputSlot, field string) (string, time.Time) {
	switch field {
	case "id":
		return strconv.Itoa(in.Status.ID) + "\n", in.Timestamps.ID
	case "state":
		return boolText(in.Status.State), in.Timestamps.State
	default:
		return "", time.Time{}
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64) + "\n"
}
