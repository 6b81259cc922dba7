package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

// StatusSetter is the part of the gRPC health server the worker drives.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Probe checks one dependency the relay cannot serve without.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthMonitoringWorker turns probe results into the gRPC serving status and
// logs the relay's own resource usage next to its queue and room counters.
type HealthMonitoringWorker struct {
	log      *slog.Logger
	health   StatusSetter
	service  string
	probes   []Probe
	stats    func(ctx context.Context) []any
	interval time.Duration
	proc     *process.Process
}

func NewHealthMonitoringWorker(log *slog.Logger, health StatusSetter, service string, interval time.Duration, probes ...Probe) *HealthMonitoringWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	w := &HealthMonitoringWorker{
		log:      log,
		health:   health,
		service:  service,
		probes:   probes,
		interval: interval,
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug("Process metrics unavailable", "error", err)
	} else {
		w.proc = proc
	}
	return w
}

// WithStats adds key/value pairs to every health log line.
func (w *HealthMonitoringWorker) WithStats(stats func(ctx context.Context) []any) *HealthMonitoringWorker {
	w.stats = stats
	return w
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	w.Check(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs every probe and publishes SERVING only when all of them pass.
func (w *HealthMonitoringWorker) Check(ctx context.Context) bool {
	healthy := true
	for _, p := range w.probes {
		if err := p.Check(ctx); err != nil {
			w.log.Warn("Health probe failed", "probe", p.Name, "error", err)
			healthy = false
		}
	}

	status := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.health.SetServingStatus(w.service, status)

	attrs := []any{"status", status.String()}
	if w.proc != nil {
		if cpu, err := w.proc.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		}
		if ram, err := w.proc.MemoryPercent(); err == nil {
			attrs = append(attrs, "ram_percent", ram)
		}
	}
	if w.stats != nil {
		attrs = append(attrs, w.stats(ctx)...)
	}
	w.log.Debug("Relay health", attrs...)
	return healthy
}
