package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbegin/padseq-go"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/project"
)

func main() {
	var (
		projectPath = flag.String("project", "", "path to a project YAML file")
		outPath     = flag.String("out", "", "output file (default: project name + .wav or .zip)")
		stems       = flag.Bool("stems", false, "write a stems bundle (zip) instead of a mixdown")
		sampleRate  = flag.Int("sample-rate", padseq.DefaultSampleRate, "render sample rate")
		volume      = flag.Float64("volume", 1.0, "master volume scalar")
		title       = flag.String("title", "", "bundle title (default: project file name)")
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

	base := strings.TrimSuffix(filepath.Base(*projectPath), filepath.Ext(*projectPath))
	if *title == "" {
		*title = base
	}
	opts := []padseq.RenderOption{
		padseq.WithRenderSampleRate(*sampleRate),
		padseq.WithRenderVolume(*volume),
		padseq.WithRenderEffects(proj.Effects...),
		padseq.WithTitle(*title),
	}

	out := *outPath
	write := func(w io.Writer) error { return padseq.ExportMixWAV(w, proj.Snapshot, opts...) }
	if *stems {
		if out == "" {
			out = base + ".zip"
		}
		write = func(w io.Writer) error { return padseq.ExportStems(w, proj.Snapshot, opts...) }
	} else if out == "" {
		out = base + ".wav"
	}

	if err := writeAtomic(out, write); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s (%.2f s)\n", out, proj.Snapshot.TotalDuration())
	if *stems {
		for _, id := range padseq.StemPatternIDs(proj.Snapshot) {
			fmt.Printf("  stem %s\n", patternName(proj.Snapshot, id))
		}
	}
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place, so a failed render leaves no partial output.
func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func patternName(snap *model.Snapshot, id string) string {
	if p, ok := snap.Pattern(id); ok && p.Name != "" {
		return p.Name
	}
	return id
}
