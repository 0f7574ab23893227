package aws

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Reconciliation metric names. Each data point is one occurrence that an operator has to
// look at (restock, manual refund, resend).
const (
	MetricStockAnomaly   = "StockAnomaly"
	MetricRefundFailed   = "RefundFailed"
	MetricEnqueueFailed  = "EnqueueFailed"
	MetricUsageNotLogged = "DiscountUsageFailed"
	MetricInvoiceFailed  = "InvoiceFailed"
)

// AnomalyReporter publishes reconciliation counters to CloudWatch.
// Reporting never fails the caller; errors are logged.
type AnomalyReporter struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewAnomalyReporter returns a reporter writing into namespace.
func NewAnomalyReporter(client CloudWatchAPI, namespace string, logger *zap.Logger) *AnomalyReporter {
	return &AnomalyReporter{
		client:    client,
		namespace: namespace,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// Report records a single occurrence of metric with the given dimensions.
func (r *AnomalyReporter) Report(ctx context.Context, metric string, dims map[string]string) {
	if r == nil || r.client == nil {
		return
	}
	now := r.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: awsString(metric),
		Value:      float64Ptr(1),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  &now,
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if dims[k] == "" {
			continue
		}
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(dims[k]),
		})
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(r.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		r.logger.Warn("put metric data failed", zap.String("metric", metric), zap.Error(err))
	}
}

func float64Ptr(v float64) *float64 { return &v }
