package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/importer"
	"github.com/ivlev/scene2video/internal/logger"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/tts"
)

var BuildVersion = "dev"

const backgroundVolume = 0.3

const usage = `Usage: scene2video [flags] <mode>

Modes:
  inspect   print the scene layout and narration status
  play      run a headless preview until the end of the timeline
  prefetch  synthesize narration for every voiced scene
  split     split one scene (-scene) at sentence boundaries
  import    build a timeline from a PDF or image folder (-input)

Flags:
`

func main() {
	_ = godotenv.Load()
	system.InitResourceLimits()

	for _, d := range []string{"input/pdf", "input/audio", "input/scripts"} {
		os.MkdirAll(d, 0755)
	}

	configPtr := flag.String("config", "scene2video.yaml", "Config file (missing file uses defaults)")
	timelinePtr := flag.String("timeline", "", "Timeline file (default: newest in the timelines dir)")
	inputPtr := flag.String("input", "", "Deck to import: PDF or image folder (default: newest PDF in input/pdf/)")
	scriptPtr := flag.String("script", "", "Narration script for import, paragraphs separated by blank lines")
	outputPtr := flag.String("output", "", "Where import writes the timeline (default: timestamped file in the timelines dir)")
	voicePtr := flag.String("voice", "", "Voice for imported scenes")
	outroPtr := flag.String("outro-url", "", "Append a QR code end card pointing at this URL")
	presetPtr := flag.String("preset", "", "Format preset: 9:16 (Shorts/TikTok), 16:9, 4:5 (Instagram)")
	scenePtr := flag.Int("scene", -1, "Scene index for split")
	speedPtr := flag.Float64("speed", 0, "Preview speed (0 keeps the timeline speed)")
	startPtr := flag.Float64("start", 0, "Preview start time in seconds")
	timeoutPtr := flag.Duration("timeout", 0, "Preview wall-clock limit (0 for none)")
	statsPtr := flag.Bool("stats", false, "Print the performance report")
	levelPtr := flag.String("log-level", "", "Log level: debug, info, warn, error")
	noCachePtr := flag.Bool("no-cache", false, "Keep narration in memory only")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	mode := flag.Arg(0)
	switch mode {
	case "inspect", "play", "prefetch", "split", "import":
	default:
		fmt.Fprintf(os.Stderr, "[-] Unknown mode %q\n\n", mode)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPtr)
	if err != nil {
		log.Fatalf("[-] Config error: %v", err)
	}
	if *levelPtr != "" {
		cfg.LogLevel = *levelPtr
	}
	if *statsPtr {
		cfg.ShowStats = true
	}
	if *noCachePtr {
		cfg.Cache.Disabled = true
	}
	if *voicePtr != "" {
		cfg.TTS.Voice = *voicePtr
	}
	if *outroPtr != "" {
		cfg.Import.OutroURL = *outroPtr
	}
	switch *presetPtr {
	case "":
	case "9:16":
		cfg.Timeline.Width, cfg.Timeline.Height = 1080, 1920
	case "16:9":
		cfg.Timeline.Width, cfg.Timeline.Height = 1920, 1080
	case "4:5":
		cfg.Timeline.Width, cfg.Timeline.Height = 1080, 1350
	default:
		log.Fatalf("[-] Unknown preset %q", *presetPtr)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] Config error: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "import" {
		if err := runImport(ctx, cfg, *inputPtr, *scriptPtr, *outputPtr); err != nil {
			log.Fatalf("[-] Import failed: %v", err)
		}
		return
	}

	path := *timelinePtr
	if path == "" {
		latest, err := timeline.FindLatestTimeline(cfg.Timeline.Dir)
		if err != nil {
			log.Fatalf("[-] Error: %v. Run import first or pass -timeline", err)
		}
		path = latest
		fmt.Printf("[*] Selected timeline: %s\n", path)
	}

	if mode == "play" || mode == "prefetch" {
		checkSynthesizer(cfg)
	}

	project, err := engine.Open(ctx, path, engine.Options{Config: cfg})
	if err != nil {
		log.Fatalf("[-] Failed to open project: %v", err)
	}
	defer project.Close()

	switch mode {
	case "inspect":
		err = project.Inspect(os.Stdout)

	case "prefetch":
		start := time.Now()
		err = project.Prefetch(ctx)
		if saveErr := project.Save(); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
		fmt.Printf("[*] Prefetch took %.2fs, %d narrations cached\n", time.Since(start).Seconds(), project.Cache.Size())
		if err != nil {
			log.Printf("[!] Some scenes have no narration: %v", err)
			err = nil
		}

	case "split":
		var n int
		n, err = project.Split(*scenePtr)
		if err == nil {
			err = project.Save()
			fmt.Printf("[+++] Scene %d now has %d parts\n", *scenePtr, n)
		}

	case "play":
		var report engine.PreviewReport
		report, err = project.Play(ctx, engine.PreviewOptions{
			Start:   *startPtr,
			Speed:   *speedPtr,
			Timeout: *timeoutPtr,
		})
		if err == nil {
			fmt.Printf("[+++] Preview finished at %.2fs of %.2fs\n", report.Final.CurrentTime, report.Final.Total)
			if cfg.ShowStats {
				engine.WriteReport(os.Stdout, report, BuildVersion)
			}
		}
	}

	if err != nil {
		log.Fatalf("[-] %s failed: %v", mode, err)
	}
}

func checkSynthesizer(cfg *config.Config) {
	probe := tts.NewCommandSynthesizer(cfg.TTS.Command, cfg.TTS.TempDir, nil)
	if err := probe.CheckInstalled(); err != nil {
		log.Printf("[!] %v. Scenes without cached narration play their nominal duration", err)
	}
}

func runImport(ctx context.Context, cfg *config.Config, input, scriptPath, output string) error {
	if input == "" {
		latest, err := system.FindLatest("input/pdf", system.DeckExtensions)
		if err != nil {
			return fmt.Errorf("%w. Put a PDF into input/pdf/ or pass -input", err)
		}
		input = latest
		fmt.Printf("[*] Selected deck: %s\n", input)
	}

	src, err := source.Open(input)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	det, err := analyzer.NewDetector(cfg.Import.Detector)
	if err != nil {
		return err
	}

	if scriptPath == "" {
		if latest, err := system.FindLatest("input/scripts", system.ScriptExtensions); err == nil {
			scriptPath = latest
			fmt.Printf("[*] Selected script: %s\n", scriptPath)
		}
	}
	var script []string
	if scriptPath != "" {
		if script, err = importer.ReadScript(scriptPath); err != nil {
			return fmt.Errorf("read script: %w", err)
		}
	}

	if output == "" {
		output = timeline.GenerateTimelinePath(cfg.Timeline.Dir)
	}
	name := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))

	fmt.Printf("[*] Source: %s | Pages: %d\n", input, src.PageCount())
	tl, report, err := importer.Import(ctx, src, det, importer.Options{
		DPI:          cfg.Import.DPI,
		Width:        cfg.Timeline.Width,
		Height:       cfg.Timeline.Height,
		FPS:          cfg.Timeline.FPS,
		PageDuration: cfg.Import.PageDuration,
		Transition:   timeline.Transition(cfg.Import.Transition),
		Voice:        cfg.TTS.Voice,
		AssetsDir:    filepath.Join(cfg.Import.AssetsDir, name),
		Script:       script,
		OutroURL:     cfg.Import.OutroURL,
	})
	if err != nil {
		return err
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("[!] Skipped %d blank pages\n", len(report.Skipped))
	}
	if latest, err := system.FindLatest("input/audio", system.AudioExtensions); err == nil {
		tl.Background = &timeline.Background{URL: latest, Volume: backgroundVolume}
		fmt.Printf("[*] Background track: %s\n", latest)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return err
	}
	if err := timeline.WriteTimeline(tl, output); err != nil {
		return err
	}
	fmt.Printf("[+++] Success! %d scenes written to %s\n", report.Scenes, output)
	return nil
}
