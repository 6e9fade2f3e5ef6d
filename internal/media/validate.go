package media

import (
	"fmt"
	"time"
)

// Shorts format limits.
const (
	MaxShortDuration = 180 * time.Second
	// Videos over a minute still upload as Shorts but lose some
	// placements, so the check only warns about them.
	PreferredShortDuration = 60 * time.Second
	MinShortEdge           = 720
	MaxShortSizeBytes      = 128 << 30
)

// CheckResult separates hard format violations from advisories. A
// video with a non-empty Errors list would be rejected by the
// platform; Warnings never block an upload.
type CheckResult struct {
	Errors   []string
	Warnings []string
}

func (r CheckResult) OK() bool {
	return len(r.Errors) == 0
}

// CheckShorts validates probe output against the Shorts format limits.
func CheckShorts(info VideoInfo) CheckResult {
	var result CheckResult

	if info.Duration > MaxShortDuration {
		result.Errors = append(result.Errors,
			fmt.Sprintf("duration %s exceeds the %s Shorts limit", info.Duration.Round(time.Second), MaxShortDuration))
	} else if info.Duration > PreferredShortDuration {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("duration %s is over %s, placement may suffer", info.Duration.Round(time.Second), PreferredShortDuration))
	}

	if !info.Vertical() {
		result.Errors = append(result.Errors,
			fmt.Sprintf("landscape %dx%d, Shorts must be vertical or square", info.Width, info.Height))
	}

	if min(info.Width, info.Height) < MinShortEdge {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("resolution %dx%d is below %dp", info.Width, info.Height, MinShortEdge))
	}

	if info.SizeBytes > MaxShortSizeBytes {
		result.Errors = append(result.Errors,
			fmt.Sprintf("file size %d bytes exceeds the upload limit", info.SizeBytes))
	}

	return result
}

// ValidateFile probes a media file and checks it in one call.
func ValidateFile(path string) (CheckResult, error) {
	info, err := NewProbe(path).ReadVideoInfo()
	if err != nil {
		return CheckResult{}, err
	}
	return CheckShorts(*info), nil
}
