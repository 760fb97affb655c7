package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic/session counter.
var Stats = &stats{}

type stats struct {
	TotalSessions  atomic.Int64 // cumulative count of sessions since process start
	ClosedSessions atomic.Int64 // cumulative count of torn-down sessions
	UplinkPackets  atomic.Int64 // packets written to the interface from the socket
	UplinkBytes    atomic.Int64
	RelayPackets   atomic.Int64 // packets accepted by the relay queue
	RelayBytes     atomic.Int64
	Batches        atomic.Int64 // successful slot uploads
	UploadFailures atomic.Int64 // dropped batches
	UploadedBytes  atomic.Int64 // serialized batch bytes successfully uploaded
}

func (s *stats) AddSession()    { s.TotalSessions.Add(1) }
func (s *stats) RemoveSession() { s.ClosedSessions.Add(1) }

func (s *stats) AddUplink(n int) {
	s.UplinkPackets.Add(1)
	s.UplinkBytes.Add(int64(n))
}

func (s *stats) AddRelayed(n int) {
	s.RelayPackets.Add(1)
	s.RelayBytes.Add(int64(n))
}

func (s *stats) AddBatch(n int) {
	s.Batches.Add(1)
	s.UploadedBytes.Add(int64(n))
}

func (s *stats) AddUploadFailure() { s.UploadFailures.Add(1) }

// ActiveSessions returns the number of sessions currently running.
func (s *stats) ActiveSessions() int64 {
	return s.TotalSessions.Load() - s.ClosedSessions.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs tunnel statistics every
// interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevUp, prevDown, prevBatches, prevFailed int64
		for {
			select {
			case <-ticker.C:
				up := Stats.UplinkBytes.Load()
				down := Stats.RelayBytes.Load()
				batches := Stats.Batches.Load()
				failed := Stats.UploadFailures.Load()

				upS := float64(up-prevUp) / secs
				downS := float64(down-prevDown) / secs
				b := batches - prevBatches
				f := failed - prevFailed

				if b > 0 || f > 0 || upS > 10 || downS > 10 {
					pterm.DefaultLogger.Info(formatStats(upS, downS, b, f))
				}

				prevUp = up
				prevDown = down
				prevBatches = batches
				prevFailed = failed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(upS, downS float64, batches, failed int64) string {
	return fmt.Sprintf("Up: %s/s | Down: %s/s | Slots: %3d✓ %2d✗",
		formatBytes(upS),
		formatBytes(downS),
		batches,
		failed,
	)
}
