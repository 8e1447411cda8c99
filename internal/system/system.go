package system

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// File extensions recognized by the CLI
var (
	DeckExtensions   = []string{".pdf"}
	ImageExtensions  = []string{".jpg", ".jpeg", ".png"}
	AudioExtensions  = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	ScriptExtensions = []string{".txt", ".md"}
)

// InitResourceLimits raises the open file limit. Synthesis workers keep
// temporary audio files open concurrently.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Could not read the open file limit: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Could not raise the open file limit: %v", err)
	}
}

// FindLatest returns the most recently modified file in dir with one of exts
func FindLatest(dir string, exts []string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latest string
	var latestTime time.Time
	for _, e := range entries {
		if e.IsDir() || !HasExtension(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latest = filepath.Join(dir, e.Name())
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no %s files in %s", strings.Join(exts, "/"), dir)
	}
	return latest, nil
}

// HasExtension matches name against exts, ignoring case
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// GetAudioDuration measures an audio file with ffprobe
func GetAudioDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(string(out)))
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

// RecommendedWorkers picks a synthesis concurrency from the physical core
// count, capped since the provider rate-limits anyway.
func RecommendedWorkers(limit int) int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if limit > 0 && n > limit {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Stats is a snapshot of host load for the report
type Stats struct {
	CPUPercent  float64
	MemUsedMB   uint64
	MemPercent  float64
	Goroutines  int
	HeapAllocMB uint64
}

// CollectStats samples CPU over interval. Host metrics that cannot be read
// stay zero.
func CollectStats(interval time.Duration) Stats {
	var s Stats
	if pct, err := cpu.Percent(interval, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsedMB = vm.Used / 1024 / 1024
		s.MemPercent = vm.UsedPercent
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAllocMB = ms.HeapAlloc / 1024 / 1024
	return s
}
