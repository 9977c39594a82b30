// Command hpsd advertises a BLE HTTP Proxy Service peripheral. A central
// writes a request's URI, headers, and body to their characteristics,
// triggers execution with a Control Point opcode, and reads the response
// back in MTU-sized chunks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli"

	"github.com/muneale/hps-ble/internal/dispatcher"
	"github.com/muneale/hps-ble/internal/executor"
	"github.com/muneale/hps-ble/internal/gattserver"
	"github.com/muneale/hps-ble/internal/hps"
	hpslog "github.com/muneale/hps-ble/internal/log"
	"github.com/muneale/hps-ble/internal/metrics"
	"github.com/muneale/hps-ble/internal/termcolor"
)

func useSyslog() bool {
	if env := os.Getenv("HPS_LOG_SYSLOG"); env != "" {
		return env == "true"
	}
	return true
}

func main() {
	app := cli.NewApp()
	app.Name = "hpsd"
	app.Usage = "BLE HTTP Proxy Service peripheral"
	app.Version = hps.CurrentVersion.String()
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "name", Value: "Logbot-HPS", Usage: "advertised local name"},
		cli.IntFlag{Name: "timeout", Value: 60, Usage: "request timeout in seconds"},
		cli.IntFlag{Name: "mtu", Value: 0, Usage: "chunk size override in bytes (0 = default ATT MTU minus 3)"},
		cli.StringFlag{Name: "metrics-addr", Value: "", Usage: "address to serve Prometheus metrics on (empty disables)"},
		cli.StringFlag{Name: "log-level", Value: "INFO", Usage: "log level: CRITICAL, ERROR, WARNING, NOTICE, INFO, DEBUG"},
		cli.BoolTFlag{Name: "syslog", Usage: "log to syslog instead of stderr"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, termcolor.Red(err.Error()))
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	trySyslog := c.Bool("syslog")
	if os.Getenv("HPS_LOG_SYSLOG") != "" {
		trySyslog = useSyslog()
	}
	log := hpslog.Setup("hpsd", hpslog.LevelFromName(c.String("log-level")), trySyslog)

	defer func() {
		if x := recover(); x != nil {
			log.Error(fmt.Sprintf("run time panic: %v", x))
			log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	fmt.Fprintln(os.Stderr, termcolor.Cyan(fmt.Sprintf("hpsd %s starting", hps.CurrentVersion)))

	timeout := uint32(c.Int("timeout"))
	mtuOverride := uint32(c.Int("mtu"))
	chunkSize := gattserver.ResolveChunkSize(mtuOverride)

	session := hps.NewSession(chunkSize, timeout)
	exec := executor.New(log)

	var recorder dispatcher.Recorder
	var metricsServer *metrics.Server
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		rec := metrics.New(reg)
		recorder = rec
		metricsServer = metrics.NewServer(addr, reg, log)
		go metricsServer.Start()
	}

	disp := dispatcher.New(session, exec, log, recorder)
	gatt := gattserver.New(gattserver.Config{Name: c.String("name")}, session, disp, log)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- gatt.Run(ctx)
	}()

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-stopSignal:
		log.Notice("stopping with signal ", sig)
	case err := <-runErr:
		if err != nil {
			log.Error("gatt server stopped: ", err)
		}
	}

	cancel()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warningf("hps: metrics server shutdown: %v", err)
		}
	}

	fmt.Fprintln(os.Stderr, termcolor.Green("hpsd stopped"))
	return nil
}
