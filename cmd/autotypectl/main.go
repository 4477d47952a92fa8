// autotypectl is the control CLI for autotyped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotyped/internal/config"
	"autotyped/internal/ipc"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath = flag.String("config", "", "path to config file")
	socketPath = flag.String("socket", "", "daemon socket (overrides config)")
	timeout    = flag.Duration("timeout", 0, "give up after this long (0 waits for the run to finish)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "trigger":
		cmdTrigger()
	case "run":
		cmdRun(args)
	case "validate":
		cmdValidate(args)
	case "open":
		cmdOpen()
	case "close":
		cmdClose()
	case "blur":
		cmdBlur()
	case "status":
		cmdStatus(args)
	case "version":
		fmt.Println("autotypectl", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `autotypectl - Control utility for autotyped

Usage: autotypectl [options] <command> [args]

Commands:
  trigger                 Auto-type into the active window (bind this to a hotkey)
  run [options] <id>      Auto-type a specific entry
  validate <id> [seq]     Check a sequence against an entry without typing
  open                    Unlock the entry store
  close                   Lock the entry store
  blur                    Drop a trigger waiting for the store to open
  status [-json|-prometheus]
                          Show daemon status and metrics
  version                 Print the version

Options:
  -config <path>   Path to config file
  -socket <path>   Daemon socket path
  -timeout <dur>   Give up after this long`)
}

func resolveSocket() string {
	if *socketPath != "" {
		return *socketPath
	}
	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	return cfg.IPC.SocketPath
}

// connect dials the daemon. The returned context carries -timeout and
// is cancelled on SIGINT.
func connect() (context.Context, *ipc.IPCClient, func()) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cancel := func() {}
	if *timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *timeout)
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	client, err := ipc.Dial(dialCtx, ipc.ClientConfig{
		SocketPath:    resolveSocket(),
		ClientName:    "autotypectl",
		ClientVersion: Version,
	})
	if err != nil {
		cancel()
		stop()
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			printError("autotyped is not running")
			fmt.Fprintln(os.Stderr, dim.Render("  Start it with: autotyped daemon"))
			os.Exit(1)
		}
		fatalf("Cannot connect to daemon: %v", err)
	}
	return ctx, client, func() {
		client.Close()
		cancel()
		stop()
	}
}

func fatalf(format string, args ...any) {
	printError(fmt.Sprintf(format, args...))
	os.Exit(1)
}
