package observability

import (
	"context"
	"net/http"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/config"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
)

// Setup wires logging, the metrics listener and tracing. The returned
// function flushes traces and stops the metrics listener.
func Setup(serviceName string, cfg *config.Config) func(context.Context) error {
	observability.InitLogger(cfg.LogLevel)
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = observability.ServeMetrics(cfg.MetricsAddr)
	}
	tracerShutdown := observability.InitTracing(serviceName, cfg.OTLPEndpoint)
	return func(ctx context.Context) error {
		if metricsServer != nil {
			_ = metricsServer.Shutdown(ctx)
		}
		return tracerShutdown(ctx)
	}
}
