package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"autotyped/internal/autotype"
	"autotyped/internal/health"
	"autotyped/internal/ipc"
	"autotyped/internal/security"
)

var (
	bold    = lipgloss.NewStyle().Bold(true)
	dim     = lipgloss.NewStyle().Faint(true)
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	section = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
)

func healthStyle(s health.Status) lipgloss.Style {
	switch s {
	case health.StatusHealthy:
		return green
	case health.StatusUnhealthy:
		return red
	}
	return yellow
}

func printError(msg string) {
	fmt.Fprintln(os.Stderr, red.Render("Error:")+" "+msg)
}

func printSection(title string) {
	fmt.Println(section.Render(title))
}

func printField(name, value string) {
	fmt.Printf("  %s %s\n", dim.Render(fmt.Sprintf("%-14s", name)), value)
}

// exitRemote prints a daemon error and exits, with a hint for the
// errors a user can fix.
func exitRemote(what string, err error) {
	var re *ipc.RemoteError
	if errors.As(err, &re) {
		switch re.Code {
		case ipc.ErrLocked:
			printError("the entry store is locked")
			fmt.Fprintln(os.Stderr, dim.Render("  Unlock it with: autotypectl open"))
			os.Exit(2)
		case ipc.ErrNotFound:
			fatalf("%s", re.Message)
		case ipc.ErrBadPassphrase:
			fatalf("wrong passphrase")
		}
	}
	fatalf("%s: %v", what, err)
}

func reportOutcome(resp *ipc.TriggerResponse) {
	switch resp.Outcome {
	case autotype.OutcomeTyped:
		fmt.Println(green.Render("typed"))
	case autotype.OutcomePending:
		fmt.Println(yellow.Render("pending") + dim.Render(" (runs once the store is opened)"))
	case autotype.OutcomeFailed, autotype.OutcomeRejected:
		fatalf("%s: %s", resp.Outcome, resp.Error)
	default:
		fmt.Println(yellow.Render(string(resp.Outcome)))
	}
}

func cmdTrigger() {
	ctx, client, done := connect()
	defer done()

	resp, err := client.Trigger(ctx)
	if err != nil {
		exitRemote("trigger", err)
	}
	reportOutcome(resp)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	seq := fs.String("seq", "", "sequence to type instead of the entry's own")
	obf := fs.Bool("obfuscate", false, "obfuscate typed text")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fatalf("Usage: autotypectl run [-seq sequence] [-obfuscate] <entry-id>")
	}

	ctx, client, done := connect()
	defer done()

	resp, err := client.Run(ctx, ipc.RunRequest{EntryID: fs.Arg(0), Sequence: *seq, Obfuscate: *obf})
	if err != nil {
		exitRemote("run", err)
	}
	reportOutcome(resp)
}

func cmdValidate(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fatalf("Usage: autotypectl validate <entry-id> [sequence]")
	}
	req := ipc.ValidateRequest{EntryID: args[0]}
	if len(args) == 2 {
		req.Sequence = args[1]
	}

	ctx, client, done := connect()
	defer done()

	resp, err := client.Validate(ctx, req)
	if err != nil {
		exitRemote("validate", err)
	}
	if resp.Ops != "" {
		printField("Sequence", resp.Ops)
	}
	if resp.Valid {
		printField("Result", green.Render("valid"))
		return
	}
	printField("Result", red.Render("invalid ("+resp.Kind+")"))
	printField("Error", resp.Error)
	switch resp.Kind {
	case "parse":
		if req.Sequence != "" {
			printField("", req.Sequence)
			printField("", strings.Repeat(" ", resp.Pos)+"^")
		}
	case "resolve":
		printField("Field", resp.Field)
	}
	os.Exit(1)
}

func cmdOpen() {
	pass, err := security.ReadPassphrase(os.Stdin, "Passphrase: ")
	if err != nil {
		fatalf("%v", err)
	}
	defer security.Wipe(pass)

	ctx, client, done := connect()
	defer done()

	if err := client.Open(ctx, pass); err != nil {
		exitRemote("open", err)
	}
	fmt.Println(green.Render("unlocked"))
}

func cmdClose() {
	ctx, client, done := connect()
	defer done()

	if err := client.Lock(ctx); err != nil {
		exitRemote("close", err)
	}
	fmt.Println(yellow.Render("locked"))
}

func cmdBlur() {
	ctx, client, done := connect()
	defer done()

	cancelled, err := client.Blur(ctx)
	if err != nil {
		exitRemote("blur", err)
	}
	if cancelled {
		fmt.Println("pending auto-type cancelled")
	} else {
		fmt.Println(dim.Render("nothing pending"))
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print raw JSON")
	prom := fs.Bool("prometheus", false, "print metrics in Prometheus text format")
	fs.Parse(args)

	ctx, client, done := connect()
	defer done()

	status, err := client.Status(ctx)
	if err != nil {
		exitRemote("status", err)
	}
	if *prom {
		fmt.Print(status.Exposition)
		return
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		return
	}

	printSection("DAEMON")
	printField("Version", bold.Render(status.Version))
	printField("Uptime", status.Uptime.Round(time.Second).String())
	printField("Started", status.StartedAt.Format(time.RFC3339))
	printField("Clients", fmt.Sprint(status.Clients))

	if status.Health != "" {
		printField("Health", healthStyle(status.Health).Render(string(status.Health)))
		names := make([]string, 0, len(status.HealthCheck))
		for name := range status.HealthCheck {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r := status.HealthCheck[name]
			detail := r.Message
			if r.Error != "" {
				detail = r.Error
			}
			printField("  "+name, healthStyle(r.Status).Render(string(r.Status))+" "+dim.Render(detail))
		}
	}

	printSection("STORE")
	if status.Store.Unlocked {
		printField("State", green.Render("UNLOCKED"))
	} else {
		printField("State", yellow.Render("LOCKED"))
	}

	printSection("AUTO-TYPE")
	state := dim.Render("idle")
	switch {
	case status.AutoType.Running:
		state = green.Render("running")
	case status.AutoType.Selecting:
		state = yellow.Render("selecting")
	}
	printField("State", state)
	if status.AutoType.Pending {
		printField("Pending", status.AutoType.Window)
	}

	if len(status.Metrics) > 0 {
		printSection("METRICS")
		names := make([]string, 0, len(status.Metrics))
		for name := range status.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printField(strings.TrimPrefix(name, "autotype_"), fmt.Sprintf("%g", status.Metrics[name]))
		}
	}
	fmt.Println()
}
