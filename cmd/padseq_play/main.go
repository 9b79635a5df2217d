package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cbegin/padseq-go"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/project"
)

func main() {
	var (
		projectPath = flag.String("project", "", "path to a project YAML file")
		sampleRate  = flag.Int("sample-rate", padseq.DefaultSampleRate, "output sample rate")
		backendName = flag.String("backend", "ebiten", "audio backend: ebiten|oto|headless")
		song        = flag.Bool("song", false, "play the song arrangement instead of one pattern")
		pattern     = flag.String("pattern", "", "pattern id to loop (default: first pattern)")
		metronome   = flag.Bool("metronome", false, "click on every beat")
		duration    = flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
		volume      = flag.Float64("volume", 1.0, "master volume scalar")
		verbose     = flag.Bool("v", false, "log pad flashes and device diagnostics")
	)
	flag.Parse()

	if strings.TrimSpace(*projectPath) == "" {
		log.Fatal("-project is required")
	}
	proj, err := project.Load(*projectPath)
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range proj.Problems {
		log.Printf("warning: %v", p)
	}
	backend, err := parseBackend(*backendName)
	if err != nil {
		log.Fatal(err)
	}

	opts := []padseq.EngineOption{
		padseq.WithSampleRate(*sampleRate),
		padseq.WithBackend(backend),
		padseq.WithMasterVolume(*volume),
	}
	if len(proj.Effects) > 0 {
		opts = append(opts, padseq.WithMasterEffects(proj.Snapshot.Tempo, proj.Effects...))
	}
	if *verbose {
		opts = append(opts, padseq.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}
	eng, err := padseq.NewEngine(opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	tr := padseq.NewTransport(eng, model.NewMemoryStore(proj.Snapshot))
	tr.SetSongMode(*song)
	tr.SetMetronome(*metronome)
	if *pattern != "" {
		if err := tr.SelectPattern(*pattern); err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	if backend == padseq.BackendHeadless {
		go driveHeadless(ctx, eng)
	}

	ch := tr.Watch()
	go printEvents(ch, *verbose)

	tr.Start()
	err = tr.Run(ctx, padseq.DefaultTickInterval)
	tr.Stop()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatal(err)
	}
	fmt.Println("stopped")
}

func parseBackend(name string) (padseq.Backend, error) {
	switch b := padseq.Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case padseq.BackendEbiten, padseq.BackendOto, padseq.BackendHeadless:
		return b, nil
	}
	return "", fmt.Errorf("invalid -backend %q (expected ebiten|oto|headless)", name)
}

// driveHeadless moves the headless clock in real time so a dry run
// schedules the way a device would.
func driveHeadless(ctx context.Context, eng *padseq.Engine) {
	const step = 10 * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eng.Advance(step.Seconds())
		}
	}
}

func printEvents(ch <-chan padseq.Event, verbose bool) {
	for ev := range ch {
		switch ev.Kind {
		case padseq.EventBeat:
			fmt.Printf("step %d pass %d bar %d beat %d\n", ev.Step+1, ev.Pass+1, ev.Bar+1, ev.Beat+1)
		case padseq.EventPadOn:
			if verbose {
				fmt.Printf("  %s\n", ev.PadID)
			}
		case padseq.EventDeviceError:
			log.Printf("audio device: %v", ev.Err)
		}
	}
}
