/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Command velctl is a command-line client for VelocityDRIVE-SP
// switches: serial/TCP-bridge transport selection, YANG get/set/
// delete/rpc against the SID-addressed data model, and firmware
// update over Block1.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/runzeroinc/velctl/coap"
	"github.com/runzeroinc/velctl/internal/metrics"
	"github.com/runzeroinc/velctl/mgmt"
	"github.com/runzeroinc/velctl/sid"
	"github.com/runzeroinc/velctl/transport"
	"github.com/runzeroinc/velctl/transport/serial"
	"github.com/runzeroinc/velctl/transport/tcpbridge"
)

// Exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitConnect     = 2
	exitTimeout     = 3
	exitDeviceError = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	switch args[0] {
	case "list-ports":
		return cmdListPorts()
	case "info":
		return cmdInfo(args[1:])
	case "get":
		return cmdGet(args[1:])
	case "set":
		return cmdSet(args[1:])
	case "delete":
		return cmdDelete(args[1:])
	case "rpc":
		return cmdRPC(args[1:])
	case "firmware":
		return cmdFirmware(args[1:])
	case "connect":
		return cmdConnect(args[1:])
	default:
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: velctl <command> [flags]

commands:
  list-ports           enumerate local serial device candidates
  connect              ping a device and report connection state
  info                 identify a device (model, port count, firmware)
  get    <path>        YANG GET
  set    <path> <json> YANG SET (value given as a JSON scalar)
  delete <path>        YANG DELETE
  rpc    <path> <json> YANG RPC
  firmware <file>      stream a firmware image via Block1`)
}

// deviceFlags are common to every command that talks to a device.
type deviceFlags struct {
	port    string
	addr    string
	timeout time.Duration
	metrics bool
}

func addDeviceFlags(fs *flag.FlagSet) *deviceFlags {
	f := &deviceFlags{}
	fs.StringVar(&f.port, "port", "", "serial device path, e.g. /dev/ttyACM0")
	fs.StringVar(&f.addr, "addr", "", "TCP bridge address, e.g. 10.0.0.5:5000")
	fs.DurationVar(&f.timeout, "timeout", 5*time.Second, "per-operation timeout")
	fs.BoolVar(&f.metrics, "metrics", false, "serve Prometheus metrics on :9107")
	return f
}

func (f *deviceFlags) dial() (transport.Transport, error) {
	switch {
	case f.port != "":
		return serial.Open(f.port)
	case f.addr != "":
		return tcpbridge.Dial(f.addr, f.timeout)
	default:
		return nil, fmt.Errorf("one of -port or -addr is required")
	}
}

func (f *deviceFlags) client() (*mgmt.Client, func(), int) {
	tr, err := f.dial()
	if err != nil {
		fmt.Fprintln(os.Stderr, "velctl:", err)
		if f.port == "" && f.addr == "" {
			return nil, nil, exitUsage
		}
		return nil, nil, exitConnect
	}

	var opts []mgmt.Option
	if f.metrics {
		coll := metrics.New(prometheus.Labels{"target": targetLabel(f)})
		prometheus.MustRegister(coll)
		opts = append(opts, mgmt.WithEngineOptions(coap.WithMetrics(coll)))
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			logrus.WithError(http.ListenAndServe(":9107", nil)).Warn("velctl: metrics server stopped")
		}()
	}

	c := mgmt.New(tr, sid.Default, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		tr.Close()
		fmt.Fprintln(os.Stderr, "velctl: connect:", err)
		return nil, nil, exitConnect
	}
	return c, func() { c.Disconnect() }, exitOK
}

func targetLabel(f *deviceFlags) string {
	if f.port != "" {
		return f.port
	}
	return f.addr
}

func cmdListPorts() int {
	ports, err := serial.ListPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, "velctl:", err)
		return exitUsage
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return exitOK
}

func cmdConnect(args []string) int {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()
	fmt.Println(c.State())
	return exitOK
}

func cmdInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), df.timeout)
	defer cancel()
	info, err := c.Identify(ctx)
	if err != nil {
		return reportErr(err)
	}
	fmt.Printf("model=%s ports=%d checksum=%d firmware=%q\n", info.Model, info.PortCount, info.Checksum, info.FirmwareVersion)
	return exitOK
}

func cmdGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		return exitUsage
	}

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), df.timeout)
	defer cancel()
	v, err := c.YANGGet(ctx, fs.Arg(0))
	if err != nil {
		return reportErr(err)
	}
	fmt.Printf("%#v\n", v)
	return exitOK
}

func cmdSet(args []string) int {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		usage()
		return exitUsage
	}

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()

	value, err := parseScalar(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "velctl:", err)
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), df.timeout)
	defer cancel()
	if err := c.YANGSet(ctx, fs.Arg(0), value); err != nil {
		return reportErr(err)
	}
	return exitOK
}

func cmdDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		return exitUsage
	}

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), df.timeout)
	defer cancel()
	if err := c.YANGDelete(ctx, fs.Arg(0)); err != nil {
		return reportErr(err)
	}
	return exitOK
}

func cmdRPC(args []string) int {
	fs := flag.NewFlagSet("rpc", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		usage()
		return exitUsage
	}

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()

	params, err := parseScalar(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, "velctl:", err)
		return exitUsage
	}

	ctx, cancel := context.WithTimeout(context.Background(), df.timeout)
	defer cancel()
	v, err := c.YANGRPC(ctx, fs.Arg(0), params)
	if err != nil {
		return reportErr(err)
	}
	fmt.Printf("%#v\n", v)
	return exitOK
}

func cmdFirmware(args []string) int {
	fs := flag.NewFlagSet("firmware", flag.ExitOnError)
	df := addDeviceFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
		return exitUsage
	}

	blob, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "velctl:", err)
		return exitUsage
	}

	c, closeFn, code := df.client()
	if code != exitOK {
		return code
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), df.timeout)
	defer cancel()
	err = c.FirmwareUpdate(ctx, blob, func(sent, total int) {
		fmt.Fprintf(os.Stderr, "\rvelctl: %d/%d bytes", sent, total)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return reportErr(err)
	}
	return exitOK
}

func reportErr(err error) int {
	fmt.Fprintln(os.Stderr, "velctl:", err)
	switch {
	case isTimeout(err):
		return exitTimeout
	default:
		return exitDeviceError
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, coap.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// parseScalar accepts a small, CLI-friendly subset of JSON scalars
// (strings, integers, booleans) rather than pulling in a JSON decoder
// for single values.
func parseScalar(s string) (any, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	return s, nil
}
