package mediaprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/user/dusk/pkg/ports"
)

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// ffprobe runs ffprobe on path and parses its JSON report.
func (p *Prober) ffprobe(ctx context.Context, path string) (ports.MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return ports.MediaInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseFFprobe(output)
}

// ParseFFprobe converts ffprobe's JSON output into MediaInfo.
func ParseFFprobe(output []byte) (ports.MediaInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return ports.MediaInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var info ports.MediaInfo
	info.Duration = parseSeconds(probe.Format.Duration)

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName
			// Still images report a nominal 25/1 with no duration.
			info.FrameRate = ParseFrameRate(stream.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = ParseFrameRate(stream.RFrameRate)
			}
			if info.Duration == 0 {
				info.Duration = parseSeconds(stream.Duration)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// ParseFrameRate parses a rational such as "30000/1001".
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func parseSeconds(s string) time.Duration {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
