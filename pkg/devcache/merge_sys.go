package devcache

import "encoding/json"

// sysConfigWire mirrors the subset of Sys.GetConfig's result this cache
// tracks (spec.md §3 sys_config). Unknown fields are preserved in Raw, not
// lost, since Document keeps the verbatim document alongside Parsed.
type sysConfigWire struct {
	Device struct {
		Name string `json:"name"`
	} `json:"device"`
	Location struct {
		TZ string `json:"tz"`
	} `json:"location"`
	SNTP struct {
		Server string `json:"server"`
	} `json:"sntp"`
}

// UpdateSysConfigFromResult merges a Sys.GetConfig result into the cached
// sys config document, replacing Raw wholesale and re-deriving Parsed
// (spec.md §9 raw+parsed sum-type pattern). A successful Sys.SetConfig does
// NOT call this directly — the engine re-issues a Sys.GetConfig instead, so
// the cache only ever reflects the device's own canonical account.
func (c *DeviceCache) UpdateSysConfigFromResult(raw json.RawMessage) error {
	var wire sysConfigWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sysConfig.Raw = raw
	c.sysConfig.Parsed = ParsedSysConfig{
		DeviceName: wire.Device.Name,
		Timezone:   wire.Location.TZ,
		SNTPEnable: wire.SNTP.Server != "",
	}
	c.sysConfig.Valid = true
	c.sysConfig.LastUpdate = now()
	c.bumpRev()
	return nil
}

// mqttConfigWire mirrors the subset of MQTT.GetConfig's result this cache
// tracks (spec.md §3 mqtt_config).
type mqttConfigWire struct {
	Enable        bool   `json:"enable"`
	Server        string `json:"server"`
	ClientID      string `json:"client_id"`
	User          string `json:"user"`
	TopicPrefix   string `json:"topic_prefix"`
	SSLCA         string `json:"ssl_ca"`
	EnableControl bool   `json:"enable_control"`
	RPCNtf        bool   `json:"rpc_ntf"`
	StatusNtf     bool   `json:"status_ntf"`
}

// UpdateMQTTConfigFromResult merges an MQTT.GetConfig result into the
// cached MQTT config document. A successful MQTT.SetConfig does NOT call
// this directly — the engine re-issues an MQTT.GetConfig instead. When
// ssl_ca is absent from the wire document, ParseSSLCA("") yields SSLCANone
// — matching the
// original's behavior of omitting the field entirely rather than emitting an
// explicit null (see DESIGN.md Open Question decisions).
func (c *DeviceCache) UpdateMQTTConfigFromResult(raw json.RawMessage) error {
	var wire mqttConfigWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mqttConfig.Raw = raw
	c.mqttConfig.Parsed = ParsedMQTTConfig{
		Enable:        wire.Enable,
		Server:        wire.Server,
		ClientID:      wire.ClientID,
		User:          wire.User,
		TopicPrefix:   wire.TopicPrefix,
		SSLCA:         ParseSSLCA(wire.SSLCA),
		EnableControl: wire.EnableControl,
		RPCNotify:     wire.RPCNtf,
		StatusNotify:  wire.StatusNtf,
	}
	c.mqttConfig.Valid = true
	c.mqttConfig.LastUpdate = now()
	c.bumpRev()
	return nil
}
