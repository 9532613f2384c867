package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/buildworker/internal/eventstore"
)

// EventsCmd implements the 'events' command.
type EventsCmd struct {
	EventID string `arg:"" name:"event-id" help:"Event id to print"`
	JSON    bool   `help:"Print entries as JSON"`
}

func (e *EventsCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.ByEventID(context.Background(), e.EventID)
	if err != nil {
		return err
	}
	if e.JSON {
		return printJSON(os.Stdout, entries)
	}
	return writeEntries(os.Stdout, entries)
}

func writeEntries(w io.Writer, entries []eventstore.Entry) error {
	for _, en := range entries {
		status := ""
		if en.Status != "" {
			status = " [" + en.Status + "]"
		}
		if _, err := fmt.Fprintf(w, "%s %-5s %s%s %s\n",
			en.Timestamp.Format(time.RFC3339), en.Level, en.Step, status, en.Message); err != nil {
			return err
		}
	}
	return nil
}
