// Package media inspects video files with ffprobe and checks them
// against the Shorts format requirements before any quota is spent on
// an upload the platform would reject.
package media

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"shorts-uploader/pkg/log"
)

type ffprobe struct {
	ffprobeCmd string
	filePath   string
}

func NewProbe(mediaPath string) ffprobe {
	return ffprobe{
		ffprobeCmd: "ffprobe",
		filePath:   filepath.Clean(mediaPath),
	}
}

// VideoInfo is the subset of probe output the format checks need.
type VideoInfo struct {
	Width     int
	Height    int
	Duration  time.Duration
	SizeBytes int64
}

// Vertical reports whether the video is portrait or square, the
// orientations the Shorts player accepts.
func (v VideoInfo) Vertical() bool {
	return v.Height >= v.Width
}

func (ff ffprobe) ReadVideoInfo() (*VideoInfo, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(cmdPath, ff.probeArgs(ff.filePath)...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe: %v", err)
		return nil, err
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return nil, err
	}

	stat, err := os.Stat(ff.filePath)
	if err != nil {
		return nil, err
	}
	info.SizeBytes = stat.Size()

	return info, nil
}

func parseProbeOutput(output []byte) (*VideoInfo, error) {
	var probeResult struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, err
	}

	info := &VideoInfo{}
	for _, stream := range probeResult.Streams {
		if stream.CodecType == "video" {
			info.Width = stream.Width
			info.Height = stream.Height
			break
		}
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("no video stream found")
	}

	seconds, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q", probeResult.Format.Duration)
	}
	info.Duration = time.Duration(seconds * float64(time.Second))

	return info, nil
}

func (ffprobe) probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v",
		"-show_format",
		path,
	}
}
