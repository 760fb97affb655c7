// Package metrics exposes the tunnel counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/drivetun/internal/util"
)

const namespace = "drivetun"

// NewRegistry returns a registry whose collectors read util.Stats at scrape
// time.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, load func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}

	s := util.Stats
	reg.MustRegister(
		counter("uplink_packets_total", "Packets received on the control connection and written to the interface", s.UplinkPackets.Load),
		counter("uplink_bytes_total", "Bytes received on the control connection and written to the interface", s.UplinkBytes.Load),
		counter("relayed_packets_total", "Downlink packets handed to the relay", s.RelayPackets.Load),
		counter("batches_uploaded_total", "Batches written to a storage slot", s.Batches.Load),
		counter("upload_failures_total", "Batches dropped because the upload failed", s.UploadFailures.Load),
		counter("uploaded_bytes_total", "Serialized batch bytes written to storage", s.UploadedBytes.Load),
		counter("sessions_total", "Tunnel sessions started", s.TotalSessions.Load),
		counter("sessions_closed_total", "Tunnel sessions ended", s.ClosedSessions.Load),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Tunnel sessions currently running",
		}, func() float64 { return float64(s.ActiveSessions()) }),
	)
	return reg
}

// Handler serves reg on /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes reg on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed starting metrics endpoint: %w", err)
	}

	srv := &http.Server{Handler: Handler(reg), ReadHeaderTimeout: 10 * time.Second}
	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	util.LogInfo("prometheus metrics up on http://%s/metrics", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
