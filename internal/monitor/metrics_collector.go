package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/maestroflow/maestro/internal/engine"
)

const metricsSubject = "metrics.engine"

// EngineMetrics is one published metrics sample.
type EngineMetrics struct {
	Timestamp   time.Time    `json:"timestamp"`
	CPUUsage    float64      `json:"cpu_usage"`
	MemoryUsage float64      `json:"memory_usage"`
	Engine      engine.Stats `json:"engine"`
}

// MetricsCollector periodically samples engine and host metrics and
// publishes them to NATS. Collection never perturbs scheduling.
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	engine   *engine.Engine
	interval time.Duration
	stop     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, eng *engine.Engine, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		engine:   eng,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the collection loop
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector",
		zap.Duration("interval", c.interval))

	go c.collectLoop(ctx)
	return nil
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics samples one metrics snapshot and publishes it
func (c *MetricsCollector) collectMetrics() {
	metrics := EngineMetrics{
		Timestamp: time.Now(),
		Engine:    c.engine.Stats(),
	}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	} else if err != nil {
		c.logger.Debug("Failed to get CPU usage", zap.Error(err))
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryUsage = memInfo.UsedPercent
	} else {
		c.logger.Debug("Failed to get memory usage", zap.Error(err))
	}

	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish(metricsSubject, data); err != nil {
		c.logger.Warn("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int("running_tasks", metrics.Engine.RunningTasks))
}
