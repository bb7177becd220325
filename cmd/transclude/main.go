// Package main is the entry point for the transclude tool.
//
// It expands every transclusion keyword line in a document and prints
// the result, optionally saving the document (links only, never copy
// text) together with any sources modified through live copies, and
// optionally staying resident to refresh copies as sources change on
// disk.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alphapapa/org-transclusion/internal/config"
	"github.com/alphapapa/org-transclusion/internal/event"
	"github.com/alphapapa/org-transclusion/internal/link"
	"github.com/alphapapa/org-transclusion/internal/plugin/lua"
	"github.com/alphapapa/org-transclusion/internal/project/watcher"
	"github.com/alphapapa/org-transclusion/internal/project/workspace"
	"github.com/alphapapa/org-transclusion/internal/provider"
	"github.com/alphapapa/org-transclusion/internal/session"
	"github.com/alphapapa/org-transclusion/internal/transclude"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "configuration file (TOML)")
	save := flag.Bool("save", false, "save the document and its modified sources")
	watch := flag.Bool("watch", false, "stay resident and refresh copies when sources change on disk")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] FILE\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		return 2
	}

	cfg, err := config.Load(configPath(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	shapes, err := cfg.CompileShapes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	bus := event.NewBus()
	ws := workspace.New(bus)
	resolver := link.NewResolver()
	provider.New(ws, provider.WithMargin(cfg.Mirror.Margin)).Register(resolver)

	notify := func(msg string) { fmt.Fprintln(os.Stderr, msg) }

	tmOpts := []transclude.Option{
		transclude.WithMargin(cfg.Mirror.Margin),
		transclude.WithNotify(notify),
	}
	for tag, re := range shapes {
		tmOpts = append(tmOpts, transclude.WithShape(tag, re))
	}
	tm := transclude.New(ws, resolver, tmOpts...)

	sm := session.New(ws, tm,
		session.WithNotify(notify),
		session.WithLinkOpenInterception(cfg.Session.InterceptLinkOpen),
	)
	defer sm.Close()

	if len(cfg.Plugins.Scripts) > 0 {
		eng, err := lua.New(ws, resolver, lua.WithMargin(cfg.Mirror.Margin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer eng.Close()
		for _, script := range cfg.Plugins.Scripts {
			if err := eng.LoadFile(script); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
		}
	}

	doc, err := ws.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	s, err := sm.Activate(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	s.AddAll()

	if *save {
		if err := ws.Save(doc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	fmt.Print(doc.Buf.Text())

	if *watch && cfg.Watcher.Enabled {
		if err := watchSources(bus, ws, doc, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

// watchSources re-prints the document whenever one of its sources
// changes on disk, until interrupted. The session manager's own bus
// subscription performs the refresh; this only watches and prints.
func watchSources(bus *event.Bus, ws *workspace.Workspace, doc *workspace.Document, cfg config.Config) error {
	w, err := watcher.New(bus, ws,
		watcher.WithSuppressWindow(time.Duration(cfg.Watcher.DebounceMS)*time.Millisecond))
	if err != nil {
		return err
	}
	defer w.Close()

	for _, p := range doc.Regions.SourcePaths() {
		if err := w.Watch(p); err != nil {
			return err
		}
	}
	if err := w.Watch(doc.Path); err != nil {
		return err
	}

	sub := bus.Subscribe(event.TopicSourceChanged, func(event.Event) {
		fmt.Print(doc.Buf.Text())
	})
	defer sub.Unsubscribe()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	return nil
}

// configPath resolves the configuration file to load: the flag value if
// given, otherwise the per-user default location.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "org-transclusion", "config.toml")
}
