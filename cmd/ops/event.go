package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ops-brain/opsd/internal/cliutil"
	"github.com/ops-brain/opsd/internal/event"
	"github.com/spf13/cobra"
)

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Inspect individual events",
	}
	cmd.AddCommand(eventShowCmd())
	return cmd
}

func eventShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a single event by ID",
		Args:  exactArgs(1, "ops event show ID"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			ev, found, err := getEvent(ctx, args[0])
			if err != nil {
				return err
			}
			if !found {
				return usageErrorf("event not found: %s", args[0])
			}
			if flagJSON {
				data, _ := json.MarshalIndent(ev, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			fmt.Printf("id:       %s\n", ev.ID)
			fmt.Printf("ts:       %s\n", ev.TS)
			fmt.Printf("type:     %s\n", ev.Type)
			fmt.Printf("tags:     %v\n", ev.Tags)
			fmt.Printf("text:     %s\n", ev.Text)
			fmt.Printf("source:   %s %s\n", ev.Source.Kind, ev.Source.Locator)
			return nil
		},
	}
}

func getEvent(ctx context.Context, id string) (*event.Event, bool, error) {
	if client, ok := probe(ctx); ok {
		var ev event.Event
		if err := client.Get(ctx, "/v1/events/"+id, nil, &ev); err != nil {
			if apiErr, ok := err.(*cliutil.APIError); ok && apiErr.StatusCode == 404 {
				return nil, false, nil
			}
			return nil, false, err
		}
		return &ev, true, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, false, err
	}
	off, err := cliutil.OpenOffline(cfg, flagConfig, false)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = off.Close() }()
	return off.Store.GetEventByID(ctx, id)
}
