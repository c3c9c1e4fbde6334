package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shellyfs/shellyfs/pkg/cli"
	"github.com/shellyfs/shellyfs/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.shellyfs/settings.yaml.

Examples:
  shellyfsd settings show
  shellyfsd settings set device_url ws://192.168.1.50/rpc
  shellyfsd settings set mount_point /mnt/shellyfs
  shellyfsd settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")

		printSetting := func(name, value string) {
			if value == "" {
				value = "(not set)"
			}
			t.Row(name, value)
		}

		printSetting("device_url", s.DeviceURL)
		printSetting("mount_point", s.GetMountPoint())
		printSetting("request_timeout_seconds", strconv.Itoa(s.GetRequestTimeoutSeconds()))
		printSetting("outbound_queue_size", strconv.Itoa(s.GetOutboundQueueSize()))
		printSetting("script_chunk_size", strconv.Itoa(s.GetScriptChunkSize()))
		printSetting("rehydration_concurrency", strconv.Itoa(s.GetRehydrationConcurrency()))
		printSetting("log_level", s.GetLogLevel())
		printSetting("audit_log_path", s.GetAuditLogPath(s.GetMountPoint()))
		printSetting("audit_max_size_mb", strconv.Itoa(s.GetAuditMaxSizeMB()))
		printSetting("audit_max_backups", strconv.Itoa(s.GetAuditMaxBackups()))

		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Long: `Set a persistent setting value.

Available settings:
  device_url               - Device WebSocket URL
  mount_point               - Filesystem mount point
  request_timeout_seconds  - Per-request timeout, in seconds
  outbound_queue_size       - Max simultaneously outstanding requests
  script_chunk_size         - Script.GetCode/PutCode chunk size, in bytes
  rehydration_concurrency  - Connect-time rehydration fan-out concurrency
  log_level                 - debug, info, warn, or error
  audit_log_path            - Audit log file path
  audit_max_size_mb         - Audit log rotation size, in MB
  audit_max_backups         - Max rotated audit log files kept`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		setting := args[0]
		value := args[1]

		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		intArg := func() (int, error) {
			n, err := strconv.Atoi(value)
			if err != nil {
				return 0, fmt.Errorf("%s requires an integer value, got %q", setting, value)
			}
			return n, nil
		}

		switch setting {
		case "device_url":
			s.DeviceURL = value
		case "mount_point":
			s.MountPoint = value
		case "request_timeout_seconds":
			n, err := intArg()
			if err != nil {
				return err
			}
			s.RequestTimeoutSeconds = n
		case "outbound_queue_size":
			n, err := intArg()
			if err != nil {
				return err
			}
			s.OutboundQueueSize = n
		case "script_chunk_size":
			n, err := intArg()
			if err != nil {
				return err
			}
			s.ScriptChunkSize = n
		case "rehydration_concurrency":
			n, err := intArg()
			if err != nil {
				return err
			}
			s.RehydrationConcurrency = n
		case "log_level":
			s.LogLevel = value
		case "audit_log_path":
			s.AuditLogPath = value
		case "audit_max_size_mb":
			n, err := intArg()
			if err != nil {
				return err
			}
			s.AuditMaxSizeMB = n
		case "audit_max_backups":
			n, err := intArg()
			if err != nil {
				return err
			}
			s.AuditMaxBackups = n
		default:
			return fmt.Errorf("unknown setting: %s", setting)
		}

		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Printf("%s set to: %s\n", setting, value)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("All settings cleared.")
		return nil
	},
}

var settingsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.DefaultSettingsPath())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsClearCmd)
	settingsCmd.AddCommand(settingsPathCmd)
}
