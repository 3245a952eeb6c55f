package capture

import (
	"os"
	"sort"
	"strings"
	"time"
)

type RecordingInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// ListRecordings returns the artifacts in the output directory, newest
// first. A missing directory means no recordings yet.
func (p *Pipeline) ListRecordings() ([]RecordingInfo, error) {
	entries, err := os.ReadDir(p.outputDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []RecordingInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), ArtifactPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, RecordingInfo{Name: e.Name(), Size: info.Size(), Created: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Created.After(out[j].Created)
	})
	return out, nil
}
