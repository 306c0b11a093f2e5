package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/voxel-nav/internal/eventbus"
	"github.com/annel0/voxel-nav/internal/navgraph"
)

const (
	defaultNatsURL = nats.DefaultURL
	timeFormat     = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		natsURL = flag.String("nats", defaultNatsURL, "NATS server URL")
		stream  = flag.String("stream", "NAV", "JetStream stream name")
		command = flag.String("cmd", "tail", "Command: tail, stats")
		types   = flag.String("types", eventbus.EventGraphChanged, "Event types filter (comma-separated)")
		sources = flag.String("sources", "", "Event sources filter (comma-separated)")
		limit   = flag.Int("limit", 0, "Stop after N events (0 = follow forever)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "tail":
		if err := tailEvents(ctx, *natsURL, *stream, &TailOptions{
			Filter: eventbus.Filter{
				Types:   parseStringList(*types),
				Sources: parseStringList(*sources),
			},
			Limit: *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(*natsURL, *stream); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
}

type TailOptions struct {
	Filter eventbus.Filter
	Limit  int
}

// tailEvents выводит новые события стрима до сигнала или лимита
func tailEvents(ctx context.Context, url, stream string, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing %s on %s (types: %v, limit: %d)\n", stream, url, opts.Filter.Types, opts.Limit)

	bus, err := eventbus.NewJetStreamBus(url, stream, time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var count atomic.Int64
	sub, err := bus.Subscribe(ctx, opts.Filter, func(_ context.Context, ev *eventbus.Envelope) {
		fmt.Println(formatEvent(ev))
		if n := count.Add(1); opts.Limit > 0 && n >= int64(opts.Limit) {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	fmt.Printf("\n📊 Total events: %d\n", count.Load())
	return nil
}

// showStats выводит состояние стрима
func showStats(url, stream string) error {
	nc, err := nats.Connect(url, nats.Name("nav-events"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	info, err := js.StreamInfo(stream)
	if err != nil {
		return fmt.Errorf("stream info: %w", err)
	}

	fmt.Println("📊 Stream statistics")
	fmt.Printf("Stream: %s subjects: %v\n", info.Config.Name, info.Config.Subjects)
	fmt.Printf("Messages: %d (%d bytes)\n", info.State.Msgs, info.State.Bytes)
	fmt.Printf("First: %s\n", info.State.FirstTime.UTC().Format(timeFormat))
	fmt.Printf("Last:  %s\n", info.State.LastTime.UTC().Format(timeFormat))
	fmt.Printf("Consumers: %d\n", info.State.Consumers)
	return nil
}

// formatEvent выводит событие в читаемом формате
func formatEvent(ev *eventbus.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s",
		ev.Timestamp.Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.ID)

	// Добавляем детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.EventGraphChanged:
		var changed navgraph.GraphChanged
		if err := json.Unmarshal(ev.Payload, &changed); err != nil {
			fmt.Fprintf(&b, "\n  ⚠️ payload: %v", err)
			break
		}
		chunks := make([]string, len(changed.Chunks))
		for i, c := range changed.Chunks {
			chunks[i] = c.String()
		}
		fmt.Fprintf(&b, "\n  Version: %d Chunks: %s", changed.Version, strings.Join(chunks, " "))
	}
	return b.String()
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
