// shellyfsd bridges a Shelly Gen2+ device's JSON-RPC-over-WebSocket API to
// a local virtual filesystem.
//
// Noun-group CLI pattern:
//
//	shellyfsd run                 # connect and run the bridge
//	shellyfsd settings show       # no device connection needed
//	shellyfsd version
//
// shellyfsd run wires the Request Registry, Device State Cache,
// Reconciliation Engine, Transport Driver, and Filesystem Projection
// together and blocks until the connection drops or the process is
// signaled; it stops short of an actual kernel mount syscall, per the
// project's scope (see pkg/fsproj for the projection a FUSE binding would
// drive).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shellyfs/shellyfs/pkg/cli"
	"github.com/shellyfs/shellyfs/pkg/settings"
	"github.com/shellyfs/shellyfs/pkg/util"
)

// App holds CLI state shared across all commands.
type App struct {
	deviceURL  string
	mountPoint string
	verbose    bool
	jsonOutput bool

	settings *settings.Settings
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "shellyfsd",
	Short:             "Filesystem bridge for Shelly Gen2+ devices",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `shellyfsd projects a Shelly Gen2+ device's JSON-RPC-over-WebSocket
state as a filesystem: switch/input status and config, scripts, schedules,
and system/MQTT config each appear as files under a mount point.

  shellyfsd run -d ws://192.168.1.50/rpc
  shellyfsd settings show
  shellyfsd version`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Logger.Warnf("could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}

		if app.deviceURL == "" {
			app.deviceURL = app.settings.GetDeviceURL()
		}
		if app.mountPoint == "" {
			app.mountPoint = app.settings.GetMountPoint()
		}

		level := app.settings.GetLogLevel()
		if app.verbose {
			level = "debug"
		}
		if err := util.SetLogLevel(level); err != nil {
			util.Logger.Warnf("invalid log level %q: %v", level, err)
		}

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.deviceURL, "device", "d", "", "Device WebSocket URL (e.g. ws://192.168.1.50/rpc)")
	rootCmd.PersistentFlags().StringVarP(&app.mountPoint, "mount", "m", "", "Filesystem mount point")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "bridge", Title: "Bridge Commands:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	runCmd.GroupID = "bridge"
	rootCmd.AddCommand(runCmd)

	for _, cmd := range []*cobra.Command{settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings,
// help, or version command — these don't need a resolved device URL.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// Color helpers — delegate to pkg/cli.
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
