package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	"github.com/zatekoja/clinicqueue/internal/query/views"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts monitorOptions

	cmd := &cobra.Command{
		Use:   "queue-monitor",
		Short: "Terminal dashboard for a clinic day's queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.InitLogger("queue-monitor", "development", opts.logLevel)
			if opts.date == "" {
				opts.date = time.Now().Format("2006-01-02")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMonitor(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiURL, "api", "http://localhost:8080", "queue API base URL")
	cmd.Flags().StringVar(&opts.streamURL, "stream", "ws://localhost:8081/api/ws", "WebSocket endpoint of the stream server")
	cmd.Flags().StringVar(&opts.room, "room", "", "watch a single room instead of the whole clinic")
	cmd.Flags().StringVar(&opts.date, "date", "", "clinic day (YYYY-MM-DD), defaults to today")
	cmd.Flags().DurationVar(&opts.refresh, "refresh", 15*time.Second, "full refetch interval")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	return cmd
}

type monitorOptions struct {
	apiURL    string
	streamURL string
	room      string
	date      string
	refresh   time.Duration
	logLevel  string
}

// runMonitor keeps a QueueView in sync by refetching on a timer and applying
// pushed events in between, redrawing after every change.
func runMonitor(ctx context.Context, opts monitorOptions) error {
	client := newQueueClient(opts.apiURL)
	view := views.NewQueueView()

	refetch := func() {
		entries, err := client.List(ctx, opts.date, opts.room)
		if err != nil {
			log.Warn().Err(err).Msg("Queue refetch failed")
			return
		}
		view.Replace(entries)
		redraw(view, opts)
	}
	refetch()

	events := make(chan []byte, 64)
	go func() {
		if err := streamEvents(ctx, opts.streamURL, topicFor(opts.room), events); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Event stream closed; relying on periodic refetch")
		}
	}()

	ticker := time.NewTicker(opts.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refetch()
		case data := <-events:
			if applyMessage(view, data) {
				redraw(view, opts)
			}
		}
	}
}

func redraw(view *views.QueueView, opts monitorOptions) {
	fmt.Fprint(os.Stdout, "\033[H\033[2J")
	title := "Clinic queue " + opts.date
	if opts.room != "" {
		title += " / room " + opts.room
	}
	fmt.Fprintln(os.Stdout, title)
	_ = renderQueue(os.Stdout, view.Entries())
}
