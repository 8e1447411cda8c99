package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// GenerateTimelinePath creates a timestamped timeline filename inside dir
func GenerateTimelinePath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("timeline_%s.yaml", timestamp))
}

// FindLatestTimeline finds the most recently modified timeline file in dir
func FindLatestTimeline(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read timelines directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var found []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{filepath.Join(dir, entry.Name()), info.ModTime()})
	}

	if len(found) == 0 {
		return "", fmt.Errorf("no timeline files found in %s", dir)
	}

	// Newest first
	sort.Slice(found, func(i, j int) bool {
		return found[i].modTime.After(found[j].modTime)
	})

	return found[0].path, nil
}
