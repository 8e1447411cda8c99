package engine

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ivlev/scene2video/internal/narration"
	"github.com/ivlev/scene2video/internal/playable"
	"github.com/ivlev/scene2video/internal/segment"
)

const previewChars = 40

// Inspect prints the scene layout of the current revision
func (p *Project) Inspect(w io.Writer) error {
	tl, rev := p.Session.Snapshot()
	spans := segment.Spans(tl.Scenes, narration.Effective(p.Cache.Lookup()))

	fmt.Fprintf(w, "[*] Timeline: %s (revision %d)\n", p.Path, rev)
	fmt.Fprintf(w, "[*] Resolution: %dx%d @ %d FPS | Speed: x%.2f\n",
		tl.Resolution.Width, tl.Resolution.Height, tl.FPS, tl.PlaybackSpeed)
	if tl.Background != nil && tl.Background.URL != "" {
		fmt.Fprintf(w, "[*] Background: %s (volume %.2f)\n", tl.Background.URL, tl.Background.Volume)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCENE\tSTART\tDURATION\tTRANSITION\tNARRATION\tTEXT")
	for i, s := range tl.Scenes {
		id := fmt.Sprintf("%d", s.SceneID)
		if s.SplitIndex != nil {
			id = fmt.Sprintf("%d.%d", s.SceneID, *s.SplitIndex)
		}
		tr := string(s.Transition)
		if tr == "" {
			tr = "none"
		}
		if !s.Transition.IsNone() {
			tr = fmt.Sprintf("%s %.2fs", tr, s.TransitionDuration)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%s\t%s\t%s\n",
			i, id, segment.StartTimeOf(spans, i), spans[i].Duration, tr,
			p.Narrator.Status(s), excerpt(s.Text.Content))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	segs := playable.Filter(tl.Scenes)
	fmt.Fprintf(w, "[*] Total: %.2fs | Playable media: %d/%d scenes, %.2fs\n",
		segment.TotalDuration(spans), len(segs), len(tl.Scenes), playable.TotalDuration(segs))
	return nil
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewChars {
		return text
	}
	return string(r[:previewChars-3]) + "..."
}
