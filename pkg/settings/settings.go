// Package settings manages persistent user settings for the shellyfsd
// bridge daemon.
package settings

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultMountPoint is the default mount point used when none is configured.
const DefaultMountPoint = "/mnt/shellyfs"

// Settings holds persistent user preferences for shellyfsd.
type Settings struct {
	// DeviceURL is the device's JSON-RPC-over-WebSocket endpoint, e.g.
	// "ws://192.168.1.50/rpc".
	DeviceURL string `yaml:"device_url,omitempty"`

	// MountPoint overrides the default filesystem mount point.
	MountPoint string `yaml:"mount_point,omitempty"`

	// RequestTimeoutSeconds overrides the registry's per-request timeout
	// (default: 30, matching pkg/registry.Timeout).
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds,omitempty"`

	// OutboundQueueSize overrides the registry's max pending requests
	// (default: 64, matching pkg/registry.MaxPending).
	OutboundQueueSize int `yaml:"outbound_queue_size,omitempty"`

	// ScriptChunkSize overrides the chunked Script.PutCode/GetCode transfer
	// size in bytes (default: 2048, matching pkg/reconcile's chunk size).
	ScriptChunkSize int `yaml:"script_chunk_size,omitempty"`

	// RehydrationConcurrency overrides how many of the connect-time
	// rehydration calls the transport driver builds and enqueues
	// concurrently (default: 3, matching pkg/transport's errgroup limit).
	RehydrationConcurrency int `yaml:"rehydration_concurrency,omitempty"`

	// LogLevel overrides the default logrus level ("debug", "info",
	// "warn", "error").
	LogLevel string `yaml:"log_level,omitempty"`

	// AuditLogPath overrides the default audit log path.
	AuditLogPath string `yaml:"audit_log_path,omitempty"`

	// AuditMaxSizeMB is the max audit log size in MB before rotation
	// (default: 10).
	AuditMaxSizeMB int `yaml:"audit_max_size_mb,omitempty"`

	// AuditMaxBackups is the max number of rotated audit log files
	// (default: 10).
	AuditMaxBackups int `yaml:"audit_max_backups,omitempty"`
}

const (
	// DefaultRequestTimeoutSeconds is the default per-request timeout.
	DefaultRequestTimeoutSeconds = 30

	// DefaultOutboundQueueSize is the default max pending request count.
	DefaultOutboundQueueSize = 64

	// DefaultScriptChunkSize is the default chunked transfer size in bytes.
	DefaultScriptChunkSize = 2048

	// DefaultRehydrationConcurrency is the default connect-time fan-out
	// concurrency limit.
	DefaultRehydrationConcurrency = 3

	// DefaultLogLevel is the default logrus level.
	DefaultLogLevel = "info"

	// DefaultAuditMaxSizeMB is the default maximum audit log size in
	// megabytes.
	DefaultAuditMaxSizeMB = 10

	// DefaultAuditMaxBackups is the default maximum number of rotated
	// audit log files.
	DefaultAuditMaxBackups = 10
)

// DefaultSettingsPath returns the default path for the settings file.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/shellyfs_settings.yaml"
	}
	return filepath.Join(home, ".shellyfs", "settings.yaml")
}

// Load reads settings from the default location.
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist.
			return s, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location.
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path.
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetDeviceURL returns the configured device URL, with no fallback: a
// missing URL is a configuration error the caller must surface.
func (s *Settings) GetDeviceURL() string {
	return s.DeviceURL
}

// GetMountPoint returns the mount point with a fallback default.
func (s *Settings) GetMountPoint() string {
	if s.MountPoint != "" {
		return s.MountPoint
	}
	return DefaultMountPoint
}

// GetRequestTimeoutSeconds returns the request timeout with a default of 30.
func (s *Settings) GetRequestTimeoutSeconds() int {
	if s.RequestTimeoutSeconds > 0 {
		return s.RequestTimeoutSeconds
	}
	return DefaultRequestTimeoutSeconds
}

// GetOutboundQueueSize returns the outbound queue size with a default of 64.
func (s *Settings) GetOutboundQueueSize() int {
	if s.OutboundQueueSize > 0 {
		return s.OutboundQueueSize
	}
	return DefaultOutboundQueueSize
}

// GetScriptChunkSize returns the script chunk size with a default of 2048.
func (s *Settings) GetScriptChunkSize() int {
	if s.ScriptChunkSize > 0 {
		return s.ScriptChunkSize
	}
	return DefaultScriptChunkSize
}

// GetRehydrationConcurrency returns the rehydration fan-out concurrency
// limit with a default of 3.
func (s *Settings) GetRehydrationConcurrency() int {
	if s.RehydrationConcurrency > 0 {
		return s.RehydrationConcurrency
	}
	return DefaultRehydrationConcurrency
}

// GetLogLevel returns the log level with a default of "info".
func (s *Settings) GetLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	return DefaultLogLevel
}

// GetAuditLogPath returns the audit log path with a fallback default. The
// default depends on mountPoint: if non-empty, uses mountPoint/audit.log;
// otherwise uses /var/log/shellyfs/audit.log.
func (s *Settings) GetAuditLogPath(mountPoint string) string {
	if s.AuditLogPath != "" {
		return s.AuditLogPath
	}
	if mountPoint != "" {
		return mountPoint + "/audit.log"
	}
	return "/var/log/shellyfs/audit.log"
}

// GetAuditMaxSizeMB returns the audit max size in MB with a default of 10.
func (s *Settings) GetAuditMaxSizeMB() int {
	if s.AuditMaxSizeMB > 0 {
		return s.AuditMaxSizeMB
	}
	return DefaultAuditMaxSizeMB
}

// GetAuditMaxBackups returns the audit max backups with a default of 10.
func (s *Settings) GetAuditMaxBackups() int {
	if s.AuditMaxBackups > 0 {
		return s.AuditMaxBackups
	}
	return DefaultAuditMaxBackups
}

// Clear resets all settings to defaults.
func (s *Settings) Clear() {
	*s = Settings{}
}
