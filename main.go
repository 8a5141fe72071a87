package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/charmbracelet/log"

	"github.com/gridbeat/gridbeat/internal/engine"
	"github.com/gridbeat/gridbeat/internal/tempo"
	"github.com/gridbeat/gridbeat/internal/types"
)

func main() {
	var (
		settingsFile string
		renderOut    string
		seconds      int
		bpm          int
		columns      int
	)
	flag.StringVar(&settingsFile, "settings", "", "Engine settings JSON to load (offline render only; -bpm still sets the tempo)")
	flag.StringVar(&renderOut, "render", "", "Render offline to this WAV file instead of playing live")
	flag.IntVar(&seconds, "seconds", 8, "Seconds to render in offline mode")
	flag.IntVar(&bpm, "bpm", 0, "Tempo in beats per minute (0 guesses from the first sample)")
	flag.IntVar(&columns, "columns", 0, "Column count (0 keeps the sample count)")
	flag.Parse()

	samples := flag.Args()
	if len(samples) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gridbeat [flags] sample.wav [sample.wav ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if bpm == 0 {
		if _, guessed, err := tempo.Guess(samples[0]); err == nil {
			bpm = int(guessed)
			log.Info("guessed tempo from sample", "path", samples[0], "bpm", bpm)
		} else {
			bpm = 120
		}
	}

	cfg := types.DefaultConfig()
	if settingsFile != "" {
		loaded, err := engine.LoadSettings(settingsFile)
		if err != nil {
			log.Warn("could not load settings, using defaults", "file", settingsFile, "err", err)
		} else {
			cfg = loaded
		}
	}
	cfg.BPM = bpm

	if renderOut != "" {
		renderOffline(cfg, samples, renderOut, seconds, columns)
		return
	}
	playLive(samples, bpm, columns)
}

// setupPattern loads the samples into slots 0..n-1 and places a four-on-the-
// floor style diagonal: a cell on every fourth step, where step s plays
// sample (s/4)%n.
func setupPattern(samples []string, columns int) error {
	n := len(samples)
	if columns <= 0 {
		columns = n
	}
	if st := engine.SetColumns(columns); st != types.StatusOK {
		return fmt.Errorf("set columns: status %d", st)
	}
	for i, path := range samples {
		if st := engine.LoadSample(i, path, true); st != types.StatusOK {
			return fmt.Errorf("load %s: status %d", path, st)
		}
		log.Info("loaded sample", "slot", i, "path", path)
	}
	for step := 0; step < types.MaxSteps; step += 4 {
		slot := (step / 4) % n
		col := slot % columns
		if st := engine.SetCell(step, col, slot); st != types.StatusOK {
			return fmt.Errorf("set cell (%d,%d): status %d", step, col, st)
		}
	}
	return nil
}

func renderOffline(cfg types.Config, samples []string, out string, seconds, columns int) {
	sink, st := engine.InitOffline(cfg)
	if st != types.StatusOK {
		log.Fatal("engine init failed", "status", st)
	}
	defer engine.Cleanup()

	if err := setupPattern(samples, columns); err != nil {
		log.Fatal("setup failed", "err", err)
	}
	if st := engine.StartRecording(out); st != types.StatusOK {
		log.Fatal("could not open recording", "path", out, "status", st)
	}
	if st := engine.StartPlayback(cfg.BPM, 0); st != types.StatusOK {
		log.Fatal("could not start playback", "status", st)
	}
	if err := sink.PullDiscard(seconds * types.SampleRate); err != nil {
		log.Fatal("render failed", "err", err)
	}
	engine.StopPlayback()
	ms, st := engine.StopRecording()
	if st != types.StatusOK {
		log.Fatal("could not finalize recording", "status", st)
	}
	log.Info("rendered", "path", out, "ms", ms)
}

func playLive(samples []string, bpm, columns int) {
	if st := engine.Init(); st != types.StatusOK {
		log.Fatal("engine init failed", "status", st)
	}
	defer engine.Cleanup()

	if err := setupPattern(samples, columns); err != nil {
		log.Fatal("setup failed", "err", err)
	}
	if st := engine.StartPlayback(bpm, 0); st != types.StatusOK {
		log.Fatal("could not start playback", "status", st)
	}
	log.Info("playing", "bpm", bpm, "voices", engine.ActiveVoiceCount())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	engine.StopPlayback()
	log.Info("stopped")
}
