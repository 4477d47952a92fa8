package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"autotyped/internal/autotype"
	"autotyped/internal/config"
	"autotyped/internal/entry"
	"autotyped/internal/security"
	"autotyped/internal/sequence"
	"autotyped/internal/store"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// unlockStore opens the configured store and asks for its passphrase.
// A store without a passphrase yet is initialized with a confirmed one.
func unlockStore(ctx context.Context, cfg *config.Config) *store.Store {
	s, err := openStore(cfg.Store)
	if err != nil {
		fatalf("Error opening store: %v", err)
	}
	initialized, err := s.Initialized(ctx)
	if err != nil {
		s.Close()
		fatalf("Error reading store: %v", err)
	}

	pass, err := security.ReadPassphrase(os.Stdin, "Passphrase: ")
	if err != nil {
		s.Close()
		fatalf("Error: %v", err)
	}
	defer security.Wipe(pass)

	if !initialized {
		confirm, err := security.ReadPassphrase(os.Stdin, "Confirm new passphrase: ")
		if err != nil {
			s.Close()
			fatalf("Error: %v", err)
		}
		same := bytes.Equal(pass, confirm)
		security.Wipe(confirm)
		if !same {
			s.Close()
			fatalf("Passphrases do not match")
		}
	}

	if err := s.Unlock(ctx, pass); err != nil {
		s.Close()
		if errors.Is(err, store.ErrBadPassphrase) {
			fatalf("Wrong passphrase")
		}
		fatalf("Error unlocking store: %v", err)
	}
	return s
}

func cmdType(args []string) {
	fs := flag.NewFlagSet("type", flag.ExitOnError)
	seq := fs.String("seq", "", "sequence to type instead of the entry's own")
	obf := fs.Bool("obfuscate", false, "obfuscate typed text")
	entriesFile := fs.String("entries", "", "read entries from a JSON export instead of the store")
	wait := fs.Duration("wait", 0, "wait before capturing the active window")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: autotyped type [options] [entry-id]")
		fmt.Fprintln(os.Stderr, "Without an id the entry is chosen by matching the active window.")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	log, err := newLogger(config.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: "stderr"})
	if err != nil {
		fatalf("Error: %v", err)
	}

	ctx, stop := signalContext()
	defer stop()

	var (
		provider entry.Provider
		get      func(id string) (*entry.Entry, error)
		lock     func(context.Context) error
	)
	if *entriesFile != "" {
		c, err := entry.LoadJSON(*entriesFile)
		if err != nil {
			fatalf("Error reading entries: %v", err)
		}
		provider = c
		get = func(id string) (*entry.Entry, error) {
			if e, ok := c.Get(id); ok {
				return e, nil
			}
			return nil, store.ErrNotFound
		}
		lock = func(context.Context) error { c.SetOpen(false); return nil }
	} else {
		s := unlockStore(ctx, cfg)
		defer s.Close()
		provider = s
		get = func(id string) (*entry.Entry, error) { return s.Get(ctx, id) }
		lock = func(context.Context) error { s.Lock(); return nil }
	}

	at, err := newAutoType(cfg, autoTypeDeps{provider: provider, log: log, lock: lock})
	if err != nil {
		fatalf("Error: %v", err)
	}

	ev := autotype.Event{Sequence: *seq, Obfuscate: *obf}
	if fs.NArg() > 0 {
		e, err := get(fs.Arg(0))
		if err != nil {
			fatalf("Error: %v", err)
		}
		ev.Entry = e
	}

	if *wait > 0 {
		fmt.Fprintf(os.Stderr, "Typing in %s, focus the target window...\n", *wait)
		select {
		case <-time.After(*wait):
		case <-ctx.Done():
			os.Exit(130)
		}
	}

	out, err := at.HandleEvent(ctx, ev)
	if err != nil {
		fatalf("Auto-type %s: %v", out, err)
	}
	fmt.Fprintln(os.Stderr, "Auto-type", out)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	entriesFile := fs.String("entries", "", "JSON export to resolve placeholders against")
	id := fs.String("id", "", "entry id to resolve placeholders against")
	clearText := fs.Bool("clear", false, "print typed text instead of masking it")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: autotyped validate [options] <sequence>")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	tmpl := fs.Arg(0)

	ops, err := sequence.Parse(tmpl)
	if err != nil {
		var pe *sequence.ParseError
		if errors.As(err, &pe) {
			fmt.Fprintln(os.Stderr, tmpl)
			fmt.Fprintln(os.Stderr, strings.Repeat(" ", pe.Pos)+"^ "+pe.Msg)
		}
		fatalf("Invalid sequence: %v", err)
	}
	fmt.Println("Parsed:      ", sequence.Describe(ops, *clearText))
	if ph := sequence.Placeholders(ops); len(ph) > 0 {
		fmt.Println("Placeholders:", strings.Join(ph, ", "))
	}

	if *id == "" {
		return
	}
	if *entriesFile == "" {
		fatalf("-id needs -entries")
	}
	c, err := entry.LoadJSON(*entriesFile)
	if err != nil {
		fatalf("Error reading entries: %v", err)
	}
	e, ok := c.Get(*id)
	if !ok {
		fatalf("Entry %q not found", *id)
	}
	resolved, err := sequence.Resolve(context.Background(), ops, e)
	if err != nil {
		fatalf("Cannot resolve for %s: %v", e, err)
	}
	fmt.Println("Resolved:    ", sequence.Describe(resolved, *clearText))
}

func cmdEntries(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: autotyped entries <list|import|delete> [args]")
		os.Exit(1)
	}
	cfg := loadConfig()
	ctx, stop := signalContext()
	defer stop()

	switch args[0] {
	case "list":
		s := unlockStore(ctx, cfg)
		defer s.Close()
		entries, err := s.All(ctx)
		if err != nil {
			fatalf("Error: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tUSERNAME\tURL\tAUTO-TYPE")
		for _, e := range entries {
			at := "no"
			if e.AutoTypeEnabled {
				at = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Title, e.UserName, e.URL, at)
		}
		w.Flush()

	case "import":
		if len(args) != 2 {
			fatalf("Usage: autotyped entries import <file.json>")
		}
		s := unlockStore(ctx, cfg)
		defer s.Close()
		n, err := s.Import(ctx, args[1])
		if err != nil {
			fatalf("Error importing %s after %d entries: %v", args[1], n, err)
		}
		fmt.Printf("Imported %d entries into %s\n", n, s.Path())

	case "delete":
		if len(args) != 2 {
			fatalf("Usage: autotyped entries delete <id>")
		}
		s := unlockStore(ctx, cfg)
		defer s.Close()
		if err := s.Delete(ctx, args[1]); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("Deleted %s\n", args[1])

	default:
		fatalf("Unknown entries action: %s", args[0])
	}
}

func cmdConfig(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: autotyped config <show|init|path|check>")
		os.Exit(1)
	}
	path := resolvedConfigPath()

	switch args[0] {
	case "show":
		fs := flag.NewFlagSet("config show", flag.ExitOnError)
		format := fs.String("format", "toml", "toml, json or yaml")
		fs.Parse(args[1:])
		data, err := loadConfig().Encode("." + *format)
		if err != nil {
			fatalf("Error: %v", err)
		}
		os.Stdout.Write(data)

	case "init":
		fs := flag.NewFlagSet("config init", flag.ExitOnError)
		force := fs.Bool("force", false, "overwrite an existing file")
		fs.Parse(args[1:])
		if _, err := os.Stat(path); err == nil && !*force {
			fatalf("%s already exists (use -force to overwrite)", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Println("Wrote", path)

	case "path":
		fmt.Println(path)

	case "check":
		cfg, err := config.Load(path)
		if err != nil {
			fatalf("Error loading %s: %v", path, err)
		}
		if err := cfg.Validate(); err != nil {
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				for _, v := range verrs {
					fmt.Fprintf(os.Stderr, "  %s\n", v.Error())
				}
			}
			fatalf("%s is invalid", path)
		}
		fmt.Printf("%s is valid (%s)\n", path, strings.TrimPrefix(filepath.Ext(path), "."))

	default:
		fatalf("Unknown config action: %s", args[0])
	}
}

