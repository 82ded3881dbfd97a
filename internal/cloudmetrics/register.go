package cloudmetrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/beacon/internal/config"
	collectormetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	exporterOTLP = "otlp"

	exportInterval = 15 * time.Second
	exportTimeout  = 5 * time.Second
)

var registerOnce sync.Once

// Register binds the pipeline recorder to the shared registry and, when the
// cloud config selects the otlp exporter, starts the streaming export loop.
// Batch exporters ship through the accounting worker instead. Failures are
// logged and never block ingestion.
func Register(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registerOnce.Do(func() {
		setRecorder(&recorder{
			metrics:      newMetrics(registry),
			defaultOrgID: cfg.Cloud.OrganizationID,
		})

		if !shouldStream(cfg) {
			return
		}

		exporterCfg, err := parseExporterConfig(cfg)
		if err != nil {
			logger.Warn("cloud metrics streaming disabled", zap.Error(err))
			return
		}

		exp := newExporter(registry, exporterCfg, logger)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				exp.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return exp.Stop(ctx)
			},
		})
	})
}

func shouldStream(cfg config.Config) bool {
	if !cfg.IsCloud() || !cfg.Cloud.Metrics.Enabled {
		return false
	}
	return strings.ToLower(strings.TrimSpace(cfg.Cloud.Metrics.Exporter)) == exporterOTLP
}

type exporterConfig struct {
	endpoint       string
	authToken      string
	otlpAddress    string
	otlpSecure     bool
	serviceName    string
	serviceVersion string
	environment    string
}

func parseExporterConfig(cfg config.Config) (exporterConfig, error) {
	endpoint := strings.TrimSpace(cfg.Cloud.Metrics.Endpoint)
	if endpoint == "" {
		return exporterConfig{}, errors.New("cloud.metrics.endpoint is required")
	}

	addr, secure, err := parseOTLPEndpoint(endpoint)
	if err != nil {
		return exporterConfig{}, err
	}

	return exporterConfig{
		endpoint:       endpoint,
		authToken:      strings.TrimSpace(cfg.Cloud.Metrics.AuthToken),
		otlpAddress:    addr,
		otlpSecure:     secure,
		serviceName:    cfg.AppName,
		serviceVersion: cfg.AppVersion,
		environment:    cfg.Environment,
	}, nil
}

func parseOTLPEndpoint(endpoint string) (string, bool, error) {
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("invalid cloud.metrics.endpoint: %w", err)
		}
		if parsed.Host == "" {
			return "", false, errors.New("cloud.metrics.endpoint host is required")
		}
		secure := parsed.Scheme == "https" || parsed.Scheme == "grpcs"
		return parsed.Host, secure, nil
	}
	if strings.TrimSpace(endpoint) == "" {
		return "", false, errors.New("cloud.metrics.endpoint is required")
	}
	return endpoint, false, nil
}

// exporter snapshots the shared registry on a fixed interval and streams
// the families to an OTLP collector. A single goroutine owns the loop;
// Stop waits for it so fx shutdown never races an in-flight export.
type exporter struct {
	authToken string
	registry  *prometheus.Registry
	logger    *zap.Logger
	resource  *resourcepb.Resource

	otlpAddress string
	otlpSecure  bool
	conn        *grpc.ClientConn

	stopCh  chan struct{}
	doneCh  chan struct{}
	warning atomic.Bool
}

func newExporter(registry *prometheus.Registry, cfg exporterConfig, logger *zap.Logger) *exporter {
	return &exporter{
		authToken:   cfg.authToken,
		registry:    registry,
		logger:      logger,
		resource:    otlpResource(cfg.serviceName, cfg.serviceVersion, cfg.environment),
		otlpAddress: cfg.otlpAddress,
		otlpSecure:  cfg.otlpSecure,
	}
}

func otlpResource(serviceName, serviceVersion, environment string) *resourcepb.Resource {
	pairs := []struct {
		key   string
		value string
	}{
		{"service.name", serviceName},
		{"service.version", serviceVersion},
		{"deployment.environment", environment},
	}

	res := &resourcepb.Resource{}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		res.Attributes = append(res.Attributes, stringAttribute(p.key, p.value))
	}
	return res
}

func stringAttribute(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func (e *exporter) Start() {
	if e == nil || e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(exportInterval)
		defer ticker.Stop()
		e.export()
		for {
			select {
			case <-ticker.C:
				e.export()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *exporter) Stop(ctx context.Context) error {
	if e == nil || e.stopCh == nil {
		return nil
	}
	close(e.stopCh)
	if e.conn != nil {
		_ = e.conn.Close()
	}
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *exporter) export() {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	families, err := e.registry.Gather()
	if err != nil {
		e.warnOnce(err)
		return
	}

	metrics := convertFamilies(families, uint64(time.Now().UnixNano()))
	if len(metrics) == 0 {
		return
	}

	if err := e.ship(ctx, metrics); err != nil {
		e.warnOnce(err)
		return
	}
	e.warning.Store(false)
}

// warnOnce logs the first failure of a streak and stays quiet until an
// export succeeds again.
func (e *exporter) warnOnce(err error) {
	if err == nil {
		return
	}
	if e.warning.CompareAndSwap(false, true) {
		e.logger.Warn("cloud metrics export failed", zap.Error(err))
	}
}

func (e *exporter) ship(ctx context.Context, metrics []*metricspb.Metric) error {
	if err := e.dial(ctx); err != nil {
		return err
	}

	if e.authToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+e.authToken)
	}

	client := collectormetricspb.NewMetricsServiceClient(e.conn)
	_, err := client.Export(ctx, &collectormetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{
			{
				Resource: e.resource,
				ScopeMetrics: []*metricspb.ScopeMetrics{
					{
						Scope:   &commonpb.InstrumentationScope{Name: "beacon.cloudmetrics"},
						Metrics: metrics,
					},
				},
			},
		},
	})
	return err
}

func (e *exporter) dial(ctx context.Context) error {
	if e.conn != nil {
		return nil
	}
	creds := insecure.NewCredentials()
	if e.otlpSecure {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	conn, err := grpc.DialContext(ctx, e.otlpAddress, grpc.WithTransportCredentials(creds), grpc.WithBlock())
	if err != nil {
		return err
	}
	e.conn = conn
	return nil
}

// convertFamilies maps gathered prometheus families onto OTLP metrics.
// The pipeline registry only holds counters and gauges; other family
// types are skipped rather than mis-typed.
func convertFamilies(families []*dto.MetricFamily, now uint64) []*metricspb.Metric {
	out := make([]*metricspb.Metric, 0, len(families))
	for _, family := range families {
		if m := convertFamily(family, now); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func convertFamily(family *dto.MetricFamily, now uint64) *metricspb.Metric {
	m := &metricspb.Metric{
		Name:        family.GetName(),
		Description: family.GetHelp(),
	}

	switch family.GetType() {
	case dto.MetricType_COUNTER:
		points := numberPoints(family.GetMetric(), now, counterValue)
		if len(points) == 0 {
			return nil
		}
		m.Data = &metricspb.Metric_Sum{
			Sum: &metricspb.Sum{
				IsMonotonic:            true,
				AggregationTemporality: metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE,
				DataPoints:             points,
			},
		}
	case dto.MetricType_GAUGE:
		points := numberPoints(family.GetMetric(), now, gaugeValue)
		if len(points) == 0 {
			return nil
		}
		m.Data = &metricspb.Metric_Gauge{
			Gauge: &metricspb.Gauge{DataPoints: points},
		}
	default:
		return nil
	}

	return m
}

func numberPoints(metrics []*dto.Metric, now uint64, take func(*dto.Metric) (float64, bool)) []*metricspb.NumberDataPoint {
	points := make([]*metricspb.NumberDataPoint, 0, len(metrics))
	for _, metric := range metrics {
		value, ok := take(metric)
		if !ok {
			continue
		}
		points = append(points, &metricspb.NumberDataPoint{
			Attributes:   labelAttributes(metric.GetLabel()),
			TimeUnixNano: now,
			Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: value},
		})
	}
	return points
}

func labelAttributes(labels []*dto.LabelPair) []*commonpb.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]*commonpb.KeyValue, 0, len(labels))
	for _, label := range labels {
		if label == nil {
			continue
		}
		attrs = append(attrs, stringAttribute(label.GetName(), label.GetValue()))
	}
	return attrs
}

func counterValue(metric *dto.Metric) (float64, bool) {
	if metric == nil || metric.GetCounter() == nil {
		return 0, false
	}
	return metric.GetCounter().GetValue(), true
}

func gaugeValue(metric *dto.Metric) (float64, bool) {
	if metric == nil || metric.GetGauge() == nil {
		return 0, false
	}
	return metric.GetGauge().GetValue(), true
}
