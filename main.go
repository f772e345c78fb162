// parley - a terminal chat client with a resilient message pipeline.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley/internal/anim"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/failure"
	"github.com/jeranaias/parley/internal/kv"
	"github.com/jeranaias/parley/internal/llm"
	"github.com/jeranaias/parley/internal/message"
	"github.com/jeranaias/parley/internal/orchestrator"
	"github.com/jeranaias/parley/internal/storage"
	"github.com/jeranaias/parley/internal/telemetry"
	"github.com/jeranaias/parley/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "explicit config file (.toml or .json)")
		dbPath     = flag.String("db", "", "override the SQLite database path")
		modelName  = flag.String("model", "", "override the default model")
		headless   = flag.String("headless", "", "send one prompt, print the response, and exit")
		roomID     = flag.String("room", "", "open a specific room instead of the last one")
		exportID   = flag.String("export", "", "print a room transcript as Markdown and exit")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("parley %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	if *dbPath != "" {
		cfg.Storage.DatabasePath = *dbPath
	}
	if *modelName != "" {
		cfg.DefaultModel = *modelName
	}

	orch, cleanup, err := buildOrchestrator(cfg, *headless != "")
	if err != nil {
		fatal("start", err)
	}
	defer cleanup()

	// Hot-reload the model selection when the config file changes.
	if *configPath != "" {
		if w, werr := config.NewWatcher(*configPath, func(next *config.Config) {
			orch.SetModel(next.DefaultModel)
		}); werr == nil {
			w.Watch()
			defer w.Close()
		}
	}

	sess := message.Session{UserID: currentUser()}

	switch {
	case *exportID != "":
		text, err := orch.ExportRoom(context.Background(), *exportID)
		if err != nil {
			fatal("export", err)
		}
		fmt.Print(text)

	case *headless != "":
		if err := runHeadless(orch, sess, *headless); err != nil {
			fatal("headless", err)
		}

	default:
		runTUI(orch, sess, *roomID)
	}
}

// loadConfig resolves the configuration from an explicit path or the
// default locations.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// buildOrchestrator wires storage, preferences, the backend client and the
// orchestration core from configuration.
func buildOrchestrator(cfg *config.Config, headless bool) (*orchestrator.Orchestrator, func(), error) {
	if dir := filepath.Dir(cfg.Storage.DatabasePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}

	store, err := storage.OpenSQLite(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	var sink telemetry.Sink = telemetry.NewLogSink()
	if headless {
		sink = telemetry.NopSink{}
	}

	persister := storage.NewPersister(store, sink)
	persister.PollAttempts = cfg.Storage.PollAttempts
	persister.PollDelay = cfg.PollDelay()

	prefs, err := kv.Open(cfg.Storage.PrefsPath)
	if err != nil {
		log.Printf("preferences unavailable: %v", err)
		prefs = nil
	}

	client := llm.NewClientWithConfig(&llm.Config{
		BaseURL:           cfg.Backend.URL,
		Timeout:           cfg.BackendTimeout(),
		DefaultModel:      cfg.DefaultModel,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
	})

	orch := orchestrator.New(persister, client, orchestrator.Options{
		RetryPolicy: failure.Policy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			BaseDelay:       cfg.RetryBaseDelay(),
			RateLimitFactor: cfg.Retry.RateLimitFactor,
		},
		AnimConfig: anim.Config{
			ChunkSize:         cfg.Anim.ChunkSize,
			TickInterval:      time.Duration(cfg.Anim.TickIntervalMs) * time.Millisecond,
			AdaptiveThreshold: cfg.Anim.AdaptiveThreshold,
			TargetDuration:    time.Duration(cfg.Anim.TargetDurationMs) * time.Millisecond,
			MinChunkSize:      cfg.Anim.MinChunkSize,
			MaxChunkSize:      cfg.Anim.MaxChunkSize,
			MinTickInterval:   time.Duration(cfg.Anim.MinTickIntervalMs) * time.Millisecond,
		},
		TokenBudget:  cfg.Backend.TokenBudget,
		DefaultModel: cfg.DefaultModel,
		Prefs:        prefs,
		Sink:         sink,
	})

	return orch, func() { store.Close() }, nil
}

// runHeadless submits one prompt into a fresh room and prints the completed
// response. The reveal animation is skipped; the full content prints once
// it is durably stored.
func runHeadless(orch *orchestrator.Orchestrator, sess message.Session, prompt string) error {
	done := make(chan *message.Message, 1)
	unsub := orch.States().Subscribe(message.NewRoomKey, func(rs *message.RoomState) {
		for _, m := range rs.Messages {
			if m.Role != message.RoleAssistant {
				continue
			}
			if m.State == message.StateCompleted || m.State == message.StateError {
				select {
				case done <- m:
				default:
				}
			}
		}
	})
	defer unsub()

	if _, err := orch.Submit(message.NewRoomKey, prompt, sess); err != nil {
		return err
	}

	select {
	case m := <-done:
		if m.State == message.StateError {
			return fmt.Errorf("%s", m.ErrorReason)
		}
		fmt.Println(m.Content)
		return nil
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timed out waiting for a response")
	}
}

// runTUI opens the chat view on the requested room, the bookmarked last
// room, or a fresh one.
func runTUI(orch *orchestrator.Orchestrator, sess message.Session, roomID string) {
	key := message.NewRoomKey
	if roomID != "" {
		key = roomID
	} else if last, ok := orch.LastRoom(); ok {
		key = last
	}

	if key != message.NewRoomKey {
		if _, err := orch.OpenRoom(context.Background(), key); err != nil {
			log.Printf("could not open room %s: %v", key, err)
			key = message.NewRoomKey
		}
	}

	m := chat.New(orch, sess, key)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatal("tui", err)
	}
}

// currentUser derives a stable local user identity.
func currentUser() string {
	if u := os.Getenv("PARLEY_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "parley: %s: %v\n", what, err)
	os.Exit(1)
}
