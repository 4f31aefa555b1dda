// Command popupsim replays popup scenarios against a configuration.
//
//	popupsim -config popups.yaml -scenario visit.yaml -scenario reload.yaml
//	popupsim -config popups.yaml -scenario visit.yaml -watch
//
// Without -watch it runs every scenario once and exits non-zero when an
// expectation fails. With -watch it keeps running: scenarios replay on every
// configuration change, metrics are served and stale records pruned.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"popengine/internal/app"
	"popengine/internal/scenario"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*l = append(*l, p)
		}
	}
	return nil
}

func main() {
	var (
		cfgPath   string
		scenarios listFlag
		watch     bool
		realtime  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json/yaml")
	flag.Var(&scenarios, "scenario", "scenario file (repeatable or comma-separated)")
	flag.BoolVar(&watch, "watch", false, "keep running and replay on config change")
	flag.BoolVar(&realtime, "realtime", false, "drive the engine on the wall clock")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(app.Options{ConfigPath: cfgPath, Scenarios: scenarios, Realtime: realtime})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if !watch {
		res, err := a.RunScenarios(ctx)
		report(res)
		_ = a.Stop(context.Background(), app.StopRunDone)
		if err != nil {
			if !errors.Is(err, app.ErrScenarioFailed) {
				fmt.Println("fatal:", err)
			}
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSIGINT
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func report(results []*scenario.Result) {
	for _, r := range results {
		state := "PASS"
		if !r.OK() {
			state = "FAIL"
		}
		fmt.Printf("%s %s (%d pages, %d events)\n", state, r.Name, r.Pages, len(r.Timeline))
		for _, e := range r.Timeline {
			fmt.Printf("    %8s  page %d  %-11s %s\n", time.Duration(e.At), e.Page, e.Event, e.Popup)
		}
		for _, f := range r.Failures {
			fmt.Printf("  - %s\n", f)
		}
	}
}
