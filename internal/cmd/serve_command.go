package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/cli"

	"github.com/fawkes74/jcon-cpp/internal/config"
	"github.com/fawkes74/jcon-cpp/internal/demo"
	"github.com/fawkes74/jcon-cpp/internal/logging"
	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/rpcctx"
	"github.com/fawkes74/jcon-cpp/internal/rpcserver"
	"github.com/fawkes74/jcon-cpp/internal/signalbus"
)

type ServeCommand struct {
	Ui      cli.Ui
	Version string

	// flags
	port        int
	bindHost    string
	transport   string
	configPath  string
	logFilePath string
	tickEvery   time.Duration
}

func (c *ServeCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("serve")

	fs.IntVar(&c.port, "port", 0, "port number to listen on, overrides listen_port from -config")
	fs.StringVar(&c.bindHost, "bind-host", "", "host to bind to, overrides bind_host from -config")
	fs.StringVar(&c.transport, "transport", "", "tcp or websocket, overrides transport from -config")
	fs.StringVar(&c.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&c.logFilePath, "log-file", "", "absolute path to a file to log into, with support "+
		"for the Go template functions {{timestamp}}, {{pid}} and {{ppid}}")
	fs.DurationVar(&c.tickEvery, "tick-interval", time.Second, "interval at which the demo clock service emits its tick signal")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *ServeCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to load config: %s", err))
		return 1
	}
	if c.port != 0 {
		cfg.Server.ListenPort = c.port
	}
	if c.bindHost != "" {
		cfg.Server.BindHost = c.bindHost
	}
	if c.transport != "" {
		cfg.Server.Transport = config.Transport(c.transport)
	}

	l := logging.NewLogger(os.Stderr)
	if c.logFilePath != "" {
		fl, err := logging.NewFileLogger(c.logFilePath)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to setup file logging: %s", err))
			return 1
		}
		defer fl.Close()
		l = fl.Logger()
	}

	ctx, cancelFunc := rpcctx.WithSignalCancel(context.Background(), l,
		syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()
	ctx = rpcctx.WithServerVersion(ctx, c.Version)

	l.Printf("Starting jcon-cpp server %s", c.Version)

	adapter := reflectadapter.New()
	bridge := signalbus.New(adapter, adapter.Registry, l)
	dispatcher := rpcserver.New(adapter, bridge, l)

	arith := demo.NewArith()
	if err := dispatcher.RegisterService(arith, "math"); err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to register math service: %s", err))
		return 1
	}

	clock := demo.NewClock()
	if err := dispatcher.RegisterService(clock, ""); err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to register clock service: %s", err))
		return 1
	}
	stopTicking := startClockTicker(clock, c.tickEvery)
	defer stopTicking()

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindHost, cfg.Server.ListenPort)

	switch cfg.Server.Transport {
	case config.TransportWebSocket:
		err = dispatcher.ListenWebSocket(ctx, addr, "/", l)
	default:
		err = dispatcher.ListenTCP(ctx, addr, l)
	}
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Server exited with error: %s", err))
		return 1
	}

	return 0
}

// startClockTicker drives clock's tick signal on a fixed interval. The
// ticker's goroutine and stop channel live here rather than on demo.Clock,
// so starting and stopping emission is host-side plumbing with no exported
// method a registered service (and therefore no remote client) can reach.
func startClockTicker(clock *demo.Clock, interval time.Duration) (stop func()) {
	tick := clock.Signals()["tick"]
	stopCh := make(chan struct{})

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				tick.Emit()
			case <-stopCh:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stopCh) }) }
}

func (c *ServeCommand) Help() string {
	helpText := `
Usage: jcon-cpp serve [options]

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *ServeCommand) Synopsis() string {
	return "Starts the RPC server"
}
