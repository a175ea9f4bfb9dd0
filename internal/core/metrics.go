package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"docgate/internal/types"
)

const (
	MetricRequestCount        = "RequestCount"
	MetricRequestLatency      = "RequestLatency"
	MetricEntitlementDecision = "EntitlementDecision"

	// metricFlushThreshold keeps PutMetricData batches well under the
	// service limit.
	metricFlushThreshold = 100
)

// CloudWatchAPI is the subset of the CloudWatch client used here.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics buffers request and entitlement metrics and publishes
// them in batches. It implements MetricsCollector and the entitlement
// service's DecisionRecorder. Call Flush at the end of each Lambda
// invocation and on shutdown.
type CloudWatchMetrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

func NewCloudWatchMetrics(client CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordRequest implements MetricsCollector.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}
	ts := m.now()
	m.add(
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
			Timestamp:  aws.Time(ts),
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRequestLatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
			Timestamp:  aws.Time(ts),
		},
	)
}

// RecordDecision counts entitlement outcomes by reason and feature.
func (m *CloudWatchMetrics) RecordDecision(_ context.Context, feature types.Feature, reason types.DenialReason) {
	m.add(cwtypes.MetricDatum{
		MetricName: aws.String(MetricEntitlementDecision),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Reason"), Value: aws.String(string(reason))},
			{Name: aws.String("Feature"), Value: aws.String(string(feature))},
		},
		Timestamp: aws.Time(m.now()),
	})
}

func (m *CloudWatchMetrics) add(data ...cwtypes.MetricDatum) {
	m.mu.Lock()
	m.pending = append(m.pending, data...)
	full := len(m.pending) >= metricFlushThreshold
	m.mu.Unlock()

	if full {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Flush(ctx); err != nil {
			m.logger.Warn("metric flush failed", "error", err)
		}
	}
}

// Flush publishes everything buffered. Data that fails to publish is
// dropped; metrics are best effort.
func (m *CloudWatchMetrics) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: batch,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %d metrics: %w", len(batch), err)
	}
	return nil
}
