package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// NewMarkdownFormatter returns a Formatter producing a Markdown report.
func NewMarkdownFormatter() Formatter {
	return FormatFunc(formatMarkdown)
}

func formatMarkdown(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Export Summary\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Project\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	fmt.Fprintf(&b, "| Project | %s |\n", orDash(s.Project.Path))
	fmt.Fprintf(&b, "| Duration | %s |\n", formatDuration(s.Project.Duration))
	fmt.Fprintf(&b, "| Clips | %d |\n", s.Project.Clips)
	fmt.Fprintf(&b, "| Tracks | %d |\n", s.Project.Tracks)
	b.WriteString("\n")

	if len(s.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		b.WriteString("| Path | Kind | Duration | Frame Rate | Size |\n|------|------|----------|------------|------|\n")
		for _, src := range s.Sources {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				src.Path, src.Kind, formatDuration(src.Duration), formatFPS(src.FrameRate), formatSize(src.Width, src.Height))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Settings\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	fmt.Fprintf(&b, "| Size | %s |\n", formatSize(s.Settings.Width, s.Settings.Height))
	fmt.Fprintf(&b, "| Frame Rate | %s |\n", formatFPS(s.Settings.FPS))
	fmt.Fprintf(&b, "| Background | %s |\n", orDash(s.Settings.Background))
	fmt.Fprintf(&b, "| Codec | %s |\n", orDash(s.Settings.Codec))
	fmt.Fprintf(&b, "| CRF | %d |\n", s.Settings.CRF)
	if s.Settings.Bitrate > 0 {
		fmt.Fprintf(&b, "| Bitrate | %d kbps |\n", s.Settings.Bitrate)
	}
	b.WriteString("\n")

	b.WriteString("## Output\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	fmt.Fprintf(&b, "| File | %s |\n", orDash(s.Video.OutputPath))
	fmt.Fprintf(&b, "| Frames | %d |\n", s.Video.FrameCount)
	if s.Video.Start > 0 {
		fmt.Fprintf(&b, "| Start | %s |\n", formatDuration(s.Video.Start))
	}
	fmt.Fprintf(&b, "| Duration | %s |\n", formatDuration(s.Video.Duration))
	fmt.Fprintf(&b, "| Render Time | %s |\n", formatDuration(s.Video.Elapsed))
	if speed := s.Video.Speed(); speed > 0 {
		fmt.Fprintf(&b, "| Speed | %.2fx realtime |\n", speed)
	}
	b.WriteString("\n")

	b.WriteString("## Frame Cache\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	fmt.Fprintf(&b, "| Hits | %d |\n", s.Cache.Hits)
	fmt.Fprintf(&b, "| Misses | %d |\n", s.Cache.Misses)
	fmt.Fprintf(&b, "| Hit Rate | %.1f%% |\n", s.Cache.HitRate()*100)
	fmt.Fprintf(&b, "| Coalesced | %d |\n", s.Cache.Coalesced)
	fmt.Fprintf(&b, "| Evictions | %d |\n", s.Cache.Evictions)
	if s.Cache.Failures > 0 {
		fmt.Fprintf(&b, "| Failures | %d |\n", s.Cache.Failures)
	}

	return b.String()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

func formatFPS(fps float64) string {
	if fps <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f fps", fps)
}

func formatSize(w, h int) string {
	if w <= 0 || h <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", w, h)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
