package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	stack "github.com/mod-net/stack"
	"github.com/mod-net/stack/internal/logger"
)

type command struct {
	flags *GlobalFlags
}

func (c command) open() (*stack.Stack, error) {
	cfg, err := stack.LoadConfig(c.flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return stack.New(cfg, logger.New(os.Stderr, slog.LevelInfo))
}

func (c command) Start(name string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if name == "" {
		return reportBulk(s.StartAll(), "started")
	}
	if err := s.Start(name); err != nil {
		return err
	}
	fmt.Printf("%s started\n", name)
	return nil
}

func (c command) Stop(name string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if name == "" {
		return reportBulk(s.StopAll(), "stopped")
	}
	if err := s.Stop(name); err != nil {
		return err
	}
	fmt.Printf("%s stopped\n", name)
	return nil
}

func (c command) Restart(name string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if name == "" {
		if err := reportBulk(s.StopAll(), "stopped"); err != nil {
			return err
		}
		return reportBulk(s.StartAll(), "started")
	}
	if err := s.Restart(name); err != nil {
		return err
	}
	fmt.Printf("%s restarted\n", name)
	return nil
}

func (c command) Status(name string, f StatusFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	var sts []stack.Status
	if name == "" {
		sts = s.StatusAll()
	} else {
		st, err := s.Status(name)
		if err != nil {
			return err
		}
		sts = []stack.Status{st}
	}
	if f.JSON {
		printJSON(sts)
		return nil
	}
	fmt.Println(statusTable(sts))
	if f.Detailed {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		events := make(map[string]stack.Event, len(sts))
		for _, st := range sts {
			evs, err := s.Recent(ctx, st.Name, 1)
			if err != nil {
				return err
			}
			if len(evs) > 0 {
				events[st.Name] = evs[0]
			}
		}
		fmt.Println(journalTable(sts, events))
	}
	return nil
}

func (c command) Logs(name string, f LogsFlags) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Logs(ctx, name, os.Stdout, f.Follow)
}

func (c command) Check(name string) error {
	s, err := c.open()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	var results []stack.CheckResult
	if name == "" {
		results = s.CheckAll()
	} else {
		r, err := s.Check(name)
		if err != nil {
			return err
		}
		results = []stack.CheckResult{r}
	}
	fmt.Println(checkTable(results))
	failed := 0
	for _, r := range results {
		if !r.Healthy {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d probes failed", failed, len(results))
	}
	return nil
}

func (c command) Serve(f ServeFlags) error {
	cfg, err := stack.LoadConfig(c.flags.ConfigPath)
	if err != nil {
		return err
	}
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	log := logger.New(os.Stderr, slog.LevelInfo)
	s, err := stack.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := stack.RegisterMetricsDefault(); err != nil {
		return err
	}
	srv, err := stack.NewHTTPServer(cfg.Listen, "/api", s)
	if err != nil {
		return err
	}
	log.Info("admin api listening", "addr", cfg.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reportBulk prints one line per attempted service and folds failures
// into a terse error; the per-service detail is already on screen.
func reportBulk(res *stack.BulkResult, okVerb string) error {
	for _, name := range res.Attempted {
		if err := res.Errors[name]; err != nil {
			fmt.Printf("%s: %v\n", name, err)
		} else {
			fmt.Printf("%s: %s\n", name, okVerb)
		}
	}
	if !res.OK() {
		return fmt.Errorf("%d of %d services failed", len(res.Failed), len(res.Attempted))
	}
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("error formatting output: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
