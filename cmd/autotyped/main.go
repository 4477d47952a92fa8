// autotyped types credentials into the focused window.
//
//	autotyped daemon              Run the auto-type daemon
//	autotyped type <id>           Auto-type one entry now
//	autotyped validate <seq>      Check a sequence template
//	autotyped entries <action>    List, import or delete stored entries
//	autotyped config <action>     Show, create or check the configuration
package main

import (
	"flag"
	"fmt"
	"os"

	"autotyped/internal/config"
)

// Version is set at build time.
var Version = "dev"

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "daemon":
		cmdDaemon(args)
	case "type":
		cmdType(args)
	case "validate":
		cmdValidate(args)
	case "entries":
		cmdEntries(args)
	case "config":
		cmdConfig(args)
	case "version":
		fmt.Println("autotyped", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `autotyped - auto-type credentials into the active window

USAGE:
    autotyped [-config path] <command> [options]

COMMANDS:
    daemon                    Run the daemon (controlled with autotypectl)
    type [options] <id>       Auto-type an entry into the active window
    validate [options] <seq>  Parse a sequence, optionally resolving it for an entry
    entries list              List stored entries
    entries import <file>     Import entries from a JSON export
    entries delete <id>       Delete a stored entry
    config show [-format f]   Print the effective configuration
    config init               Write the default configuration file
    config path               Print the configuration file path
    config check              Validate the configuration file
    version                   Print the version

ENVIRONMENT:
    AUTOTYPE_STORE_PATH, AUTOTYPE_SOCKET_PATH, AUTOTYPE_LOG_LEVEL,
    AUTOTYPE_BACKEND, AUTOTYPE_PICKER, AUTOTYPE_DEFAULT_SEQUENCE,
    AUTOTYPE_DIRECT, AUTOTYPE_OBFUSCATE, AUTOTYPE_CLEAR_TEXT_LOG`)
}

func resolvedConfigPath() string {
	if *configPath != "" {
		return *configPath
	}
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return config.ConfigPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolvedConfigPath())
	if err != nil {
		fatalf("Error loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}
	return cfg
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
