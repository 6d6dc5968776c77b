package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"edo/pkg/bridge"
	"edo/pkg/config"
	"edo/pkg/events"
	"edo/pkg/llm"
	"edo/pkg/memory"
	"edo/pkg/sense"
	"edo/pkg/speech"
	"edo/pkg/turn"
	"edo/pkg/ui"
)

// resolveMemoryPath lets memory.path relocate conversation storage away
// from the settings database.
func resolveMemoryPath(snap config.Snapshot, fallback string) string {
	if snap.Memory.Path != "" {
		return snap.Memory.Path
	}
	return fallback
}

// runApp wires storage, workers, the event router and the UI, then blocks
// until the UI exits or a signal arrives.
func runApp() error {
	path, err := dbPath()
	if err != nil {
		return errors.Wrap(err, "resolve db path")
	}

	cfgStore, err := config.OpenStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = cfgStore.Close() }()

	cfgSvc, err := config.NewService(cfgStore)
	if err != nil {
		return err
	}
	snap := cfgSvc.Snapshot()

	memStore, err := memory.Open(resolveMemoryPath(snap, path))
	if err != nil {
		return err
	}
	defer func() { _ = memStore.Close() }()

	router, err := events.NewRouter()
	if err != nil {
		return err
	}

	br := bridge.New(bridge.DefaultCapacity)
	router.AddHandler("ui-forwarder", events.TopicChat, func(ev events.Event) error {
		br.Send(ev)
		return nil
	})

	client := llm.NewOpenAIClient(snap.LLM.BaseURL, snap.LLM.APIKey)
	coord := turn.NewCoordinator(client, cfgSvc, memStore, router)

	speechWorker := speech.NewWorker(
		speech.NewTranscriptionClient(snap.LLM.BaseURL, snap.LLM.APIKey, ""),
		router,
		30*time.Second,
	)

	history := memory.NewHistory(snap.Memory.MaxHistory)
	if turns, err := memStore.RecentTurns(snap.Memory.MaxHistory); err != nil {
		log.Warn().Err(err).Msg("could not restore conversation")
	} else {
		history.Replace(turns)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(ctx)
	})
	<-router.Running()

	if snap.Sense.RemoToken != "" {
		poller := sense.NewPoller(
			sense.NewRemoClient("", snap.Sense.RemoToken),
			memStore,
			router,
			time.Duration(snap.Sense.PollIntervalSec)*time.Second,
		)
		g.Go(func() error {
			if err := poller.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// SIGHUP reloads the stored configuration and tells the UI about it.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				if _, err := cfgSvc.Reload(); err != nil {
					log.Warn().Err(err).Msg("reload rejected, keeping previous configuration")
					continue
				}
				if err := router.Publish(events.TopicChat, events.New(events.KindConfigReloaded, 0)); err != nil {
					log.Warn().Err(err).Msg("publish reload event failed")
				}
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		defer br.Close()
		model := ui.NewModel(ui.Options{
			Bridge:  br,
			Coord:   coord,
			Config:  cfgSvc,
			Store:   memStore,
			History: history,
			Speech:  speechWorker,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	return g.Wait()
}
