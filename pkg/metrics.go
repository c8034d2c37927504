package metacache

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	metricSourceLoads       = metrics.NewCounter("metacache_source_loads_total")
	metricMetaPuts          = metrics.NewCounter("metacache_meta_puts_total")
	metricPageInvalidations = metrics.NewCounter("metacache_page_invalidations_total")
	metricPathEvictions     = metrics.NewCounter("metacache_path_evictions_total")
)

func initMetricsPush(ctx context.Context, config MetricsConfig) {
	credentials := base64.StdEncoding.EncodeToString([]byte(config.Username + ":" + config.Password))

	opts := &metrics.PushOptions{
		Headers: []string{
			fmt.Sprintf("Authorization: Basic %s", credentials),
		},
	}

	interval := time.Duration(config.PushIntervalS) * time.Second
	pushProcessMetrics := true

	err := metrics.InitPushWithOptions(ctx, config.PushURL, interval, pushProcessMetrics, opts)
	if err != nil {
		Logger.Errorf("Failed to initialize metrics: %v", err)
	}
}
