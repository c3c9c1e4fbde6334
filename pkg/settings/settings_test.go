package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	if got := s.GetMountPoint(); got != DefaultMountPoint {
		t.Errorf("GetMountPoint() default = %q, want %q", got, DefaultMountPoint)
	}
	if got := s.GetRequestTimeoutSeconds(); got != DefaultRequestTimeoutSeconds {
		t.Errorf("GetRequestTimeoutSeconds() default = %d, want %d", got, DefaultRequestTimeoutSeconds)
	}
	if got := s.GetOutboundQueueSize(); got != DefaultOutboundQueueSize {
		t.Errorf("GetOutboundQueueSize() default = %d, want %d", got, DefaultOutboundQueueSize)
	}
	if got := s.GetScriptChunkSize(); got != DefaultScriptChunkSize {
		t.Errorf("GetScriptChunkSize() default = %d, want %d", got, DefaultScriptChunkSize)
	}
	if got := s.GetRehydrationConcurrency(); got != DefaultRehydrationConcurrency {
		t.Errorf("GetRehydrationConcurrency() default = %d, want %d", got, DefaultRehydrationConcurrency)
	}
	if got := s.GetLogLevel(); got != DefaultLogLevel {
		t.Errorf("GetLogLevel() default = %q, want %q", got, DefaultLogLevel)
	}
	if s.DeviceURL != "" {
		t.Errorf("DeviceURL should be empty, got %q", s.DeviceURL)
	}
}

func TestSettings_Overrides(t *testing.T) {
	s := &Settings{
		DeviceURL:              "ws://shelly.local/rpc",
		MountPoint:             "/mnt/shelly1",
		RequestTimeoutSeconds:  15,
		OutboundQueueSize:      32,
		ScriptChunkSize:        1024,
		RehydrationConcurrency: 1,
		LogLevel:               "debug",
	}

	if got := s.GetDeviceURL(); got != "ws://shelly.local/rpc" {
		t.Errorf("GetDeviceURL() = %q", got)
	}
	if got := s.GetMountPoint(); got != "/mnt/shelly1" {
		t.Errorf("GetMountPoint() = %q", got)
	}
	if got := s.GetRequestTimeoutSeconds(); got != 15 {
		t.Errorf("GetRequestTimeoutSeconds() = %d", got)
	}
	if got := s.GetOutboundQueueSize(); got != 32 {
		t.Errorf("GetOutboundQueueSize() = %d", got)
	}
	if got := s.GetScriptChunkSize(); got != 1024 {
		t.Errorf("GetScriptChunkSize() = %d", got)
	}
	if got := s.GetRehydrationConcurrency(); got != 1 {
		t.Errorf("GetRehydrationConcurrency() = %d", got)
	}
	if got := s.GetLogLevel(); got != "debug" {
		t.Errorf("GetLogLevel() = %q", got)
	}
}

func TestSettings_GetAuditLogPath(t *testing.T) {
	s := &Settings{}
	if got := s.GetAuditLogPath(""); got != "/var/log/shellyfs/audit.log" {
		t.Errorf("GetAuditLogPath(\"\") = %q", got)
	}
	if got := s.GetAuditLogPath("/mnt/shellyfs"); got != "/mnt/shellyfs/audit.log" {
		t.Errorf("GetAuditLogPath(mountPoint) = %q", got)
	}

	s.AuditLogPath = "/custom/audit.log"
	if got := s.GetAuditLogPath("/mnt/shellyfs"); got != "/custom/audit.log" {
		t.Errorf("GetAuditLogPath() override = %q", got)
	}
}

func TestSettings_AuditRotationDefaults(t *testing.T) {
	s := &Settings{}
	if got := s.GetAuditMaxSizeMB(); got != DefaultAuditMaxSizeMB {
		t.Errorf("GetAuditMaxSizeMB() default = %d, want %d", got, DefaultAuditMaxSizeMB)
	}
	if got := s.GetAuditMaxBackups(); got != DefaultAuditMaxBackups {
		t.Errorf("GetAuditMaxBackups() default = %d, want %d", got, DefaultAuditMaxBackups)
	}

	s.AuditMaxSizeMB = 50
	s.AuditMaxBackups = 3
	if got := s.GetAuditMaxSizeMB(); got != 50 {
		t.Errorf("GetAuditMaxSizeMB() override = %d", got)
	}
	if got := s.GetAuditMaxBackups(); got != 3 {
		t.Errorf("GetAuditMaxBackups() override = %d", got)
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{
		DeviceURL:  "ws://shelly.local/rpc",
		MountPoint: "/mnt/shelly1",
		LogLevel:   "debug",
	}

	s.Clear()

	if s.DeviceURL != "" || s.MountPoint != "" || s.LogLevel != "" {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shellyfs-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "settings.yaml")

	original := &Settings{
		DeviceURL:       "ws://192.168.1.50/rpc",
		MountPoint:      "/mnt/shellyfs",
		ScriptChunkSize: 4096,
		LogLevel:        "warn",
	}

	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if loaded.DeviceURL != original.DeviceURL {
		t.Errorf("DeviceURL mismatch: got %q, want %q", loaded.DeviceURL, original.DeviceURL)
	}
	if loaded.MountPoint != original.MountPoint {
		t.Errorf("MountPoint mismatch: got %q, want %q", loaded.MountPoint, original.MountPoint)
	}
	if loaded.ScriptChunkSize != original.ScriptChunkSize {
		t.Errorf("ScriptChunkSize mismatch: got %d, want %d", loaded.ScriptChunkSize, original.ScriptChunkSize)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: got %q, want %q", loaded.LogLevel, original.LogLevel)
	}
}

func TestSettings_LoadNonExistent(t *testing.T) {
	s, err := LoadFrom("/nonexistent/path/settings.yaml")
	if err != nil {
		t.Fatalf("LoadFrom() non-existent should not error: %v", err)
	}
	if s == nil {
		t.Fatal("LoadFrom() should return non-nil Settings")
	}
	if s.DeviceURL != "" {
		t.Error("LoadFrom() non-existent should return empty settings")
	}
}

func TestSettings_LoadInvalidYAML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shellyfs-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "settings.yaml")
	if err := os.WriteFile(path, []byte("device_url: [unterminated"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = LoadFrom(path)
	if err == nil {
		t.Error("LoadFrom() with invalid YAML should error")
	}
}

func TestSettings_SaveCreatesDirectory(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shellyfs-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "subdir", "nested", "settings.yaml")

	s := &Settings{DeviceURL: "ws://192.168.1.50/rpc"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() should create directories: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("SaveTo() should have created the file")
	}
}

func TestDefaultSettingsPath(t *testing.T) {
	path := DefaultSettingsPath()
	if path == "" {
		t.Error("DefaultSettingsPath() should not be empty")
	}
	if !filepath.IsAbs(path) && path != "/tmp/shellyfs_settings.yaml" {
		t.Errorf("DefaultSettingsPath() should be absolute or fallback, got %q", path)
	}
}

func TestLoad(t *testing.T) {
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	tmpDir, err := os.MkdirTemp("", "shellyfs-test-home-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	os.Setenv("HOME", tmpDir)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() with non-existent file should not error: %v", err)
	}
	if s == nil {
		t.Fatal("Load() should return non-nil Settings")
	}
	if s.DeviceURL != "" {
		t.Error("Load() with non-existent file should return empty settings")
	}

	shellyfsDir := filepath.Join(tmpDir, ".shellyfs")
	if err := os.MkdirAll(shellyfsDir, 0755); err != nil {
		t.Fatalf("Failed to create .shellyfs dir: %v", err)
	}

	settingsPath := filepath.Join(shellyfsDir, "settings.yaml")
	testSettings := "device_url: ws://192.168.1.50/rpc\nmount_point: /mnt/shellyfs\n"
	if err := os.WriteFile(settingsPath, []byte(testSettings), 0644); err != nil {
		t.Fatalf("Failed to write test settings: %v", err)
	}

	s, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.DeviceURL != "ws://192.168.1.50/rpc" {
		t.Errorf("Load() DeviceURL = %q, want %q", s.DeviceURL, "ws://192.168.1.50/rpc")
	}
	if s.MountPoint != "/mnt/shellyfs" {
		t.Errorf("Load() MountPoint = %q, want %q", s.MountPoint, "/mnt/shellyfs")
	}
}

func TestSave(t *testing.T) {
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	tmpDir, err := os.MkdirTemp("", "shellyfs-test-home-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	os.Setenv("HOME", tmpDir)

	s := &Settings{
		DeviceURL:  "ws://saved.local/rpc",
		MountPoint: "/mnt/saved",
	}

	if err := s.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	expectedPath := filepath.Join(tmpDir, ".shellyfs", "settings.yaml")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Save() did not create file at %s", expectedPath)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() failed: %v", err)
	}
	if loaded.DeviceURL != "ws://saved.local/rpc" {
		t.Errorf("After Save(), DeviceURL = %q, want %q", loaded.DeviceURL, "ws://saved.local/rpc")
	}
	if loaded.MountPoint != "/mnt/saved" {
		t.Errorf("After Save(), MountPoint = %q, want %q", loaded.MountPoint, "/mnt/saved")
	}
}

func TestDefaultSettingsPath_NoHome(t *testing.T) {
	originalHome := os.Getenv("HOME")
	defer os.Setenv("HOME", originalHome)

	os.Unsetenv("HOME")

	path := DefaultSettingsPath()
	if path != "/tmp/shellyfs_settings.yaml" {
		t.Errorf("DefaultSettingsPath() with no HOME = %q, want %q", path, "/tmp/shellyfs_settings.yaml")
	}
}

func TestLoadFrom_ReadError(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shellyfs-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dirAsFile := filepath.Join(tmpDir, "settings.yaml")
	if err := os.Mkdir(dirAsFile, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	_, err = LoadFrom(dirAsFile)
	if err == nil {
		t.Error("LoadFrom() should error when path is a directory")
	}
}

func TestSaveTo_MkdirError(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shellyfs-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	blockingFile := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blockingFile, []byte("blocking"), 0644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}

	path := filepath.Join(blockingFile, "subdir", "settings.yaml")
	s := &Settings{DeviceURL: "ws://192.168.1.50/rpc"}

	err = s.SaveTo(path)
	if err == nil {
		t.Error("SaveTo() should fail when directory creation fails")
	}
}
