// Package metrics records conversion metrics on a private registry. A batch
// run has no scrape endpoint, so the registry is flushed to a node_exporter
// textfile and/or a Pushgateway when the run ends.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"dae2blend/internal/config"
	"dae2blend/internal/models"
)

const namespace = "dae2blend"

type Collector struct {
	registry *prometheus.Registry

	conversionsTotal *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	extractedBytes   prometheus.Counter
	sceneImages      *prometheus.GaugeVec
	lastSuccess      prometheus.Gauge

	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		conversionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Total number of conversions by outcome",
			},
			[]string{"status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each conversion stage in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"stage"},
		),
		extractedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extracted_bytes_total",
				Help:      "Bytes extracted from input archives",
			},
		),
		sceneImages: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scene_images",
				Help:      "Images referenced by the last inspected scene",
			},
			[]string{"state"},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful conversion",
			},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordConversion counts a finished conversion.
func (c *Collector) RecordConversion(status string) {
	c.conversionsTotal.WithLabelValues(status).Inc()
	if status == models.StatusSucceeded {
		c.lastSuccess.SetToCurrentTime()
	}
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveTimings records every finished stage of t.
func (c *Collector) ObserveTimings(t *StageTimings) {
	t.Each(c.ObserveStage)
}

func (c *Collector) AddExtractedBytes(n int64) {
	if n > 0 {
		c.extractedBytes.Add(float64(n))
	}
}

func (c *Collector) SetSceneImages(found, missing int) {
	c.sceneImages.WithLabelValues("found").Set(float64(found))
	c.sceneImages.WithLabelValues("missing").Set(float64(missing))
}

// Flush writes the registry to the configured sinks. Both sinks are tried;
// the first error is returned.
func (c *Collector) Flush(ctx context.Context, cfg config.MetricsConfig) error {
	var firstErr error
	if cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Textfile, c.registry); err != nil {
			firstErr = errors.Wrapf(err, "could not write metrics to %s", cfg.Textfile)
		} else {
			c.logger.Debug("metrics written", zap.String("textfile", cfg.Textfile))
		}
	}
	if cfg.PushgatewayURL != "" {
		err := push.New(cfg.PushgatewayURL, cfg.Job).Gatherer(c.registry).PushContext(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "could not push metrics to %s", cfg.PushgatewayURL)
			}
		} else {
			c.logger.Debug("metrics pushed", zap.String("url", cfg.PushgatewayURL), zap.String("job", cfg.Job))
		}
	}
	return firstErr
}
