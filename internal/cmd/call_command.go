package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/cli"

	"github.com/fawkes74/jcon-cpp/internal/logging"
	"github.com/fawkes74/jcon-cpp/internal/reflectadapter"
	"github.com/fawkes74/jcon-cpp/internal/rpcclient"
	"github.com/fawkes74/jcon-cpp/internal/transport"
)

// CallCommand is a small diagnostic client: it dials a running server,
// issues one call or subscribes to one signal, prints the result (or the
// notifications it receives) and exits.
type CallCommand struct {
	Ui cli.Ui

	addr      string
	transport string
	params    string
	subscribe string
	arity     int
	timeout   time.Duration
}

func (c *CallCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("call")

	fs.StringVar(&c.addr, "addr", "127.0.0.1:9000", "host:port of the server to dial")
	fs.StringVar(&c.transport, "transport", "tcp", "tcp or websocket")
	fs.StringVar(&c.params, "params", "[]", "JSON array of positional parameters for the call; any other JSON value is sent as the single parameter")
	fs.StringVar(&c.subscribe, "subscribe", "", "signal signature to subscribe to instead of making a call")
	fs.IntVar(&c.arity, "arity", 0, "number of parameters the subscribed signal emits (0-3)")
	fs.DurationVar(&c.timeout, "timeout", 5*time.Second, "call timeout, or how long to wait for signal notifications")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *CallCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	rest := f.Args()
	if c.subscribe == "" && len(rest) != 1 {
		c.Ui.Error("Expected exactly one positional argument: the method name")
		return 1
	}

	framer, err := c.dial()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to connect to %s: %s", c.addr, err))
		return 1
	}

	logger := logging.Discard()
	ep := transport.New(framer, logger)
	client := rpcclient.New(ep, reflectadapter.New(), logger)
	go ep.Run()

	if c.subscribe != "" {
		return c.runSubscribe(client)
	}
	return c.runCall(client, rest[0])
}

func (c *CallCommand) dial() (transport.Framer, error) {
	switch c.transport {
	case "websocket":
		url := "ws://" + c.addr + "/"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return nil, err
		}
		return transport.NewWebSocketFramer(conn), nil
	default:
		conn, err := net.Dial("tcp", c.addr)
		if err != nil {
			return nil, err
		}
		return transport.NewLineFramer(conn), nil
	}
}

func (c *CallCommand) runCall(client *rpcclient.Client, method string) int {
	var params []json.RawMessage
	if err := json.Unmarshal([]byte(c.params), &params); err != nil {
		// Fall back to treating -params as a single object argument.
		params = []json.RawMessage{json.RawMessage(c.params)}
	}

	result, err := client.Call(method, params, c.timeout)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Call failed: %s", err))
		return 1
	}

	c.Ui.Output(string(result))
	return 0
}

// signalPrinter is the diagnostic client's local handler object: it exposes
// one method per supported signal arity so RegisterNotificationHandler has a
// real Go signature to synthesise a parameter list from (§4.4). -arity picks
// which one is bound, since this generic client has no other way to learn a
// remote signal's declared arity ahead of time.
type signalPrinter struct{ out io.Writer }

func (p *signalPrinter) Print0() { fmt.Fprintln(p.out, "[]") }

func (p *signalPrinter) Print1(a interface{}) { p.print(a) }

func (p *signalPrinter) Print2(a, b interface{}) { p.print(a, b) }

func (p *signalPrinter) Print3(a, b, c interface{}) { p.print(a, b, c) }

func (p *signalPrinter) print(args ...interface{}) {
	body, err := json.Marshal(args)
	if err != nil {
		fmt.Fprintf(p.out, "<unencodable notification: %s>\n", err)
		return
	}
	fmt.Fprintln(p.out, string(body))
}

func (c *CallCommand) runSubscribe(client *rpcclient.Client) int {
	printer := &signalPrinter{out: os.Stdout}
	method := fmt.Sprintf("Print%d", c.arity)

	err := client.RegisterNotificationHandler(printer, method, c.subscribe, c.timeout,
		func(ok bool, text string, err error) {
			if err != nil {
				c.Ui.Error(fmt.Sprintf("registerSignalHandler failed: %s", err))
				return
			}
			if !ok {
				c.Ui.Error(fmt.Sprintf("Server rejected subscription: %s", text))
			}
		})
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	time.Sleep(c.timeout)
	return 0
}

func (c *CallCommand) Help() string {
	helpText := `
Usage: jcon-cpp call [options] <method>

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *CallCommand) Synopsis() string {
	return "Calls a method, or subscribes to a signal, on a running server"
}
