package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary and whether rendering can proceed
// without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of resolving a Requirement on PATH.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Check resolves one requirement.
func Check(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}

// CheckBinaries resolves every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = Check(req)
	}
	return results
}

// MediaRequirements lists the binaries rendering shells out to. ffmpeg is
// optional when every input is canonical WAV and delivery is WAV; ffprobe
// only refines reported durations.
func MediaRequirements(ffmpegBinary, ffprobeBinary, outputFormat string) []Requirement {
	format := strings.ToLower(strings.TrimSpace(outputFormat))
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Transcodes non-WAV inputs and encodes " + format + " output",
			Optional:    format == "wav",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Reads back duration and channels of encoded episodes",
			Optional:    true,
		},
	}
}

// MissingRequired filters statuses down to unavailable required binaries.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status)
		}
	}
	return missing
}
