package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dukex/orchestrator/pkg/events"
	cli "github.com/urfave/cli/v3"
)

var ErrNoEventBus = errors.New("an event bus is required, set --event-bus")

func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect orchestrator events",
		Commands: []*cli.Command{
			{
				Name:   "tail",
				Usage:  "Print events as JSON lines until interrupted",
				Action: tailEvents,
			},
		},
	}
}

func tailEvents(ctx context.Context, command *cli.Command) error {
	rt, err := newRuntime(ctx, command, "events")
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	if rt.bus == nil {
		return ErrNoEventBus
	}

	var mu sync.Mutex

	encoder := json.NewEncoder(command.Root().Writer)
	emit := func(_ context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()

		return encoder.Encode(event)
	}

	for _, eventType := range []events.EventType{
		events.RunTriggeredEvent,
		events.RunStateChangedEvent,
		events.ClusterSyncedEvent,
	} {
		err = rt.bus.Handle(eventType, emit)
		if err != nil {
			return err
		}
	}

	err = rt.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	rt.logger.InfoContext(ctx, "tailing events")
	<-ctx.Done()

	return nil
}
