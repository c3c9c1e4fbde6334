package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shellyfs/shellyfs/pkg/auditlog"
	"github.com/shellyfs/shellyfs/pkg/devcache"
	"github.com/shellyfs/shellyfs/pkg/fsproj"
	"github.com/shellyfs/shellyfs/pkg/reconcile"
	"github.com/shellyfs/shellyfs/pkg/registry"
	"github.com/shellyfs/shellyfs/pkg/transport"
	"github.com/shellyfs/shellyfs/pkg/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a device and run the filesystem bridge",
	Long: `run dials the device's JSON-RPC-over-WebSocket endpoint, performs the
initial rehydration sequence, and blocks serving the resulting Filesystem
Projection until the connection drops or the process is signaled.

It does not perform an actual kernel mount; a real deployment wires the
resulting *fsproj.Projection into a FUSE library of the operator's choosing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.deviceURL == "" {
			return fmt.Errorf("device URL required: use -d <url> or `shellyfsd settings set device_url <url>`")
		}

		auditPath := app.settings.GetAuditLogPath(app.mountPoint)
		auditLogger, err := auditlog.NewFileLogger(auditPath, auditlog.RotationConfig{
			MaxSize:    int64(app.settings.GetAuditMaxSizeMB()) * 1024 * 1024,
			MaxBackups: app.settings.GetAuditMaxBackups(),
		})
		if err != nil {
			util.Logger.Warnf("could not initialize audit logging: %v", err)
		} else {
			auditlog.SetDefaultLogger(auditLogger)
			defer auditLogger.Close()
		}

		reg := registry.NewWithLimits(
			app.settings.GetOutboundQueueSize(),
			time.Duration(app.settings.GetRequestTimeoutSeconds())*time.Second,
		)
		cache := devcache.New()

		driver := transport.New(app.deviceURL, reg, cache)
		driver.RehydrationConcurrency = app.settings.GetRehydrationConcurrency()

		engine := reconcile.New(cache, reg, driver)
		engine.ChunkSize = app.settings.GetScriptChunkSize()
		driver.SetEngine(engine)

		projection := fsproj.New(cache, engine, driver.Connected)

		fmt.Printf("shellyfsd: connecting to %s\n", app.deviceURL)
		fmt.Printf("shellyfsd: projection ready, mount point %s\n", app.mountPoint)
		fmt.Println(yellow("(no kernel mount performed — wire *fsproj.Projection into a FUSE binding to serve it)"))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := driver.Run(ctx); err != nil {
			return fmt.Errorf("transport: %w", err)
		}

		if names, ok := projection.Readdir("/"); ok {
			util.WithFields(map[string]interface{}{"entries": len(names)}).Debug("shellyfsd: final root listing")
		}
		fmt.Println(green("shellyfsd: connection closed"))
		return nil
	},
}
