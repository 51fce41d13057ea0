package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"etfwatch/internal/storage"
)

// ListFlags prints the state of every notification flag.
func (a *App) ListFlags(ctx context.Context, w io.Writer) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	records, err := rt.flags.List(ctx)
	if err != nil {
		return err
	}

	loc := rt.calendar.Location()
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Event\tMarked\tMarked At\tRun ID\tNote")
	for _, rec := range records {
		markedAt := "-"
		if rec.Marked {
			markedAt = rec.MarkedAt.In(loc).Format(time.DateTime)
		}
		fmt.Fprintf(writer, "%s\t%t\t%s\t%s\t%s\n",
			rec.Event, rec.Marked, markedAt, orDash(rec.RunID), orDash(sanitizeInline(rec.Note)))
	}
	return writer.Flush()
}

// ResetFlags clears the named events, or every event when all is set, so
// the next run notifies again.
func (a *App) ResetFlags(ctx context.Context, names []string, all bool) ([]storage.Event, error) {
	var events []storage.Event
	if all {
		events = storage.Events()
	} else {
		if len(names) == 0 {
			return nil, fmt.Errorf("name at least one event or pass --all")
		}
		for _, name := range names {
			event, err := storage.ParseEvent(name)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}
	}

	rt, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	for _, event := range events {
		if err := rt.flags.Reset(ctx, event); err != nil {
			return nil, err
		}
		a.Logger.Info().Str("event", string(event)).Msg("flag reset")
	}
	return events, nil
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
