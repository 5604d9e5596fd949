package web

import (
	"sync"
	"sync/atomic"
	"time"

	"gliderkmz/internal/refresh"
)

// RefreshSource is the part of refresh.Runner the status page reads.
type RefreshSource interface {
	Snapshot(nowUTC time.Time) refresh.Snapshot
}

type Status struct {
	startUnixNano int64
	outputPath    atomic.Value // string
	kmlType       atomic.Value // string
	refresh       atomic.Value // RefreshSource

	mu     sync.RWMutex
	output OutputSnapshot
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.outputPath.Store("")
	s.kmlType.Store("")
	return s
}

// OutputSnapshot describes the most recent document written.
type OutputSnapshot struct {
	Deployments    int    `json:"deployments"`
	SkippedRecords int    `json:"skipped_records"`
	Bytes          int64  `json:"bytes"`
	WrittenUTC     string `json:"written_utc,omitempty"`
	RunID          string `json:"run_id,omitempty"`
}

func (s *Status) SetStatic(outputPath, kmlType string, src RefreshSource) {
	if outputPath != "" {
		s.outputPath.Store(outputPath)
	}
	if kmlType != "" {
		s.kmlType.Store(kmlType)
	}
	if src != nil {
		s.refresh.Store(src)
	}
}

func (s *Status) OutputPath() string {
	return s.outputPath.Load().(string)
}

func (s *Status) MarkWritten(nowUTC time.Time, runID string, deployments, skipped int, size int64) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	s.mu.Lock()
	s.output = OutputSnapshot{
		Deployments:    deployments,
		SkippedRecords: skipped,
		Bytes:          size,
		WrittenUTC:     nowUTC.UTC().Format(time.RFC3339),
		RunID:          runID,
	}
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service    string            `json:"service"`
	NowUTC     string            `json:"now_utc"`
	UptimeSec  int64             `json:"uptime_sec"`
	OutputFile string            `json:"output_file"`
	KMLType    string            `json:"kml_type"`
	Output     OutputSnapshot    `json:"output"`
	Refresh    *refresh.Snapshot `json:"refresh,omitempty"`
	Disk       *DiskSnapshot     `json:"disk,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	s.mu.RLock()
	output := s.output
	s.mu.RUnlock()

	snap := StatusSnapshot{
		Service:    "gliderkmz",
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		OutputFile: s.OutputPath(),
		KMLType:    s.kmlType.Load().(string),
		Output:     output,
	}
	if src, ok := s.refresh.Load().(RefreshSource); ok && src != nil {
		r := src.Snapshot(nowUTC)
		snap.Refresh = &r
	}
	if snap.OutputFile != "" {
		snap.Disk = snapshotDisk(snap.OutputFile)
	}
	return snap
}
