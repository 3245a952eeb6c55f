package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// InitResourceLimits raises the open-file limit; every video handle holds a
// decoder process with its pipes. Returns the limit in effect.
func InitResourceLimits() (uint64, error) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, fmt.Errorf("getrlimit: %w", err)
	}

	want := uint64(2048)
	if want > rLimit.Max {
		want = rLimit.Max
	}
	if rLimit.Cur >= want {
		return rLimit.Cur, nil
	}
	rLimit.Cur = want

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, fmt.Errorf("setrlimit: %w", err)
	}
	return rLimit.Cur, nil
}

// ScanMedia lists the files in dir accepted by keep, sorted by name.
// A path to a single file is returned as is.
func ScanMedia(path string, keep func(string) bool) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(path, e.Name())
		if keep(full) {
			paths = append(paths, full)
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no media files found in %s", path)
	}
	return paths, nil
}

// GetBestH264Encoder picks a hardware H.264 encoder when ffmpeg has one.
// Priority: VideoToolbox (macOS), NVENC (NVIDIA), then libx264.
func GetBestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

// QualityArgs maps a quality knob to encoder-specific ffmpeg options.
// Zero picks a per-encoder default.
func QualityArgs(encoder string, quality int) map[string]interface{} {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox does not honor -q:v everywhere, use bitrate.
		if quality == 0 {
			quality = 75
		}
		return map[string]interface{}{"b:v": fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		if quality == 0 {
			quality = 28
		}
		return map[string]interface{}{"cq": quality}
	default:
		if quality == 0 {
			quality = 23
		}
		return map[string]interface{}{"crf": quality, "preset": "veryfast"}
	}
}
