package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/system"
	"github.com/ivlev/scene2video/internal/transport"
)

// PreviewOptions controls a headless playback run
type PreviewOptions struct {
	Start   float64       // Seconds into the timeline
	Speed   float64       // 0 keeps the timeline speed
	Timeout time.Duration // Wall-clock limit, 0 for none
	FPS     int           // Tick rate, 0 uses the config value
}

// PreviewReport describes a finished preview
type PreviewReport struct {
	Final    transport.Status
	Frames   renderer.Stats
	Elapsed  time.Duration
	TimedOut bool
	Host     system.Stats
}

// Play runs the transport loop until the timeline ends, ctx is done or the
// timeout passes. Narration is requested in the background and picked up as
// it resolves.
func (p *Project) Play(ctx context.Context, opts PreviewOptions) (PreviewReport, error) {
	start := time.Now()
	fps := opts.FPS
	if fps <= 0 {
		fps = p.Config.Preview.FPS
	}

	if n := p.RequestAll(ctx); n > 0 {
		p.log.Info("%d scenes waiting for narration", n)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := transport.NewLoop(p.transport, fps, p.Session.Changes(), p.log)
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(runCtx) }()

	stop := func() {
		cancel()
		<-runErr
	}

	if opts.Speed > 0 {
		if err := loop.SetSpeed(opts.Speed); err != nil {
			stop()
			return PreviewReport{}, err
		}
	}
	if opts.Start > 0 {
		if err := loop.Seek(opts.Start); err != nil {
			stop()
			return PreviewReport{}, err
		}
	}
	if err := loop.Play(); err != nil {
		stop()
		return PreviewReport{}, err
	}

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	report := PreviewReport{}
	var err error
	select {
	case <-loop.Ended():
	case <-timeout:
		report.TimedOut = true
		loop.Pause()
	case <-ctx.Done():
		err = ctx.Err()
	}
	stop()

	report.Final = loop.Status()
	report.Frames = p.Preview.Stats()
	report.Elapsed = time.Since(start)
	if p.Config.ShowStats {
		report.Host = system.CollectStats(200 * time.Millisecond)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return report, err
}

// WriteReport prints the performance report of a preview
func WriteReport(w io.Writer, r PreviewReport, build string) {
	fps := 0.0
	if r.Elapsed > 0 {
		fps = float64(r.Frames.Frames) / r.Elapsed.Seconds()
	}
	fmt.Fprintf(w,
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Wall Time: %.2fs\n"+
			"Timeline: %.2fs / %.2fs (%s, x%.2f)\n"+
			"Frames: %d (hard cuts: %d, scene changes: %d)\n"+
			"Effective FPS: %.2f\n",
		build, r.Elapsed.Seconds(),
		r.Final.CurrentTime, r.Final.Total, r.Final.State, r.Final.Speed,
		r.Frames.Frames, r.Frames.HardCuts, r.Frames.SceneChanges,
		fps,
	)
	if r.Host != (system.Stats{}) {
		fmt.Fprintf(w,
			"CPU: %.1f%% | RAM: %d MB (%.1f%%) | Heap: %d MB | Goroutines: %d\n",
			r.Host.CPUPercent, r.Host.MemUsedMB, r.Host.MemPercent, r.Host.HeapAllocMB, r.Host.Goroutines,
		)
	}
	fmt.Fprintln(w, "----------------------------")
}
