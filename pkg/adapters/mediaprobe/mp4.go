package mediaprobe

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/dusk/pkg/ports"
)

// codecNames maps sample entry types to codec names.
var codecNames = map[string]string{
	"avc1": "h264",
	"avc3": "h264",
	"hvc1": "hevc",
	"hev1": "hevc",
	"av01": "av1",
	"vp09": "vp9",
	"mp4a": "aac",
	"Opus": "opus",
}

// ProbeMP4File reads the container header of an ISO-BMFF file without
// touching its media data.
func ProbeMP4File(path string) (ports.MediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.MediaInfo{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ProbeMP4(f)
}

// ProbeMP4 reads media properties from an MP4 stream.
func ProbeMP4(r io.ReadSeeker) (ports.MediaInfo, error) {
	file, err := mp4.DecodeFile(r, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return ports.MediaInfo{}, fmt.Errorf("decode mp4: %w", err)
	}

	moov := file.Moov
	if file.IsFragmented() && file.Init != nil {
		moov = file.Init.Moov
	}
	if moov == nil {
		return ports.MediaInfo{}, fmt.Errorf("%w: no moov box", ErrUnsupported)
	}

	var info ports.MediaInfo
	if moov.Mvhd != nil && moov.Mvhd.Timescale > 0 {
		info.Duration = ticks(moov.Mvhd.Duration, moov.Mvhd.Timescale)
	}

	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
			continue
		}
		switch trak.Mdia.Hdlr.HandlerType {
		case "soun":
			info.HasAudio = true
		case "vide":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			probeVideoTrak(file, moov, trak, &info)
		}
	}
	return info, nil
}

func probeVideoTrak(file *mp4.File, moov *mp4.MoovBox, trak *mp4.TrakBox, info *ports.MediaInfo) {
	if trak.Tkhd != nil {
		info.Width = int(trak.Tkhd.Width >> 16)
		info.Height = int(trak.Tkhd.Height >> 16)
	}

	var stbl *mp4.StblBox
	if trak.Mdia.Minf != nil {
		stbl = trak.Mdia.Minf.Stbl
	}
	if stbl != nil && stbl.Stsd != nil {
		for _, child := range stbl.Stsd.Children {
			if name, ok := codecNames[child.Type()]; ok {
				info.Codec = name
			}
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok && (info.Width == 0 || info.Height == 0) {
				info.Width, info.Height = int(vse.Width), int(vse.Height)
			}
			if info.Codec != "" {
				break
			}
		}
	}

	mdhd := trak.Mdia.Mdhd
	if mdhd == nil || mdhd.Timescale == 0 {
		return
	}

	samples, total := uint64(0), uint64(0)
	if file.IsFragmented() && trak.Tkhd != nil {
		samples, total = fragmentSamples(file, moov, trak.Tkhd.TrackID)
	} else if stbl != nil && stbl.Stts != nil {
		for i, n := range stbl.Stts.SampleCount {
			samples += uint64(n)
			total += uint64(n) * uint64(stbl.Stts.SampleTimeDelta[i])
		}
	}
	if total == 0 {
		total = mdhd.Duration
	}
	if samples > 0 && total > 0 {
		info.FrameRate = float64(samples) * float64(mdhd.Timescale) / float64(total)
	}
	if d := ticks(total, mdhd.Timescale); d > info.Duration {
		info.Duration = d
	}
}

// fragmentSamples sums sample count and duration over every fragment of
// the track, falling back to tfhd and trex defaults for missing durations.
func fragmentSamples(file *mp4.File, moov *mp4.MoovBox, trackID uint32) (count, total uint64) {
	var trexDur uint32
	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			if trex.TrackID == trackID {
				trexDur = trex.DefaultSampleDuration
			}
		}
	}
	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd == nil || traf.Tfhd.TrackID != trackID {
					continue
				}
				def := trexDur
				if traf.Tfhd.HasDefaultSampleDuration() {
					def = traf.Tfhd.DefaultSampleDuration
				}
				for _, trun := range traf.Truns {
					for _, s := range trun.Samples {
						dur := s.Dur
						if dur == 0 {
							dur = def
						}
						count++
						total += uint64(dur)
					}
				}
			}
		}
	}
	return count, total
}

func ticks(n uint64, timescale uint32) time.Duration {
	return time.Duration(float64(n) * float64(time.Second) / float64(timescale))
}
