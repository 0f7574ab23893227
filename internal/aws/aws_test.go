package aws

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

type mockSQS struct {
	mu    sync.Mutex
	input []*sqs.SendMessageInput
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = append(m.input, in)
	return &sqs.SendMessageOutput{MessageId: awsString("msg-1")}, nil
}

type mockCloudWatch struct {
	input []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.input = append(m.input, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublisher_SkipsEmptyAttributes(t *testing.T) {
	m := &mockSQS{}
	p := NewPublisher(m, "https://sqs.local/queue")

	id, err := p.Send(context.Background(), `{"kind":"x"}`, map[string]string{"job_id": "j1", "order_id": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("expected message id msg-1, got %s", id)
	}
	if len(m.input) != 1 {
		t.Fatalf("expected one message, got %d", len(m.input))
	}
	attrs := m.input[0].MessageAttributes
	if _, ok := attrs["order_id"]; ok {
		t.Fatalf("empty attribute should be skipped")
	}
	if v := attrs["job_id"]; v.StringValue == nil || *v.StringValue != "j1" {
		t.Fatalf("job_id attribute missing")
	}
}

func TestAnomalyReporter_Report(t *testing.T) {
	cw := &mockCloudWatch{}
	r := NewAnomalyReporter(cw, "Storefront/Reconciliation", zap.NewNop())

	r.Report(context.Background(), MetricStockAnomaly, map[string]string{"size": "42", "product_id": "p1"})

	if len(cw.input) != 1 {
		t.Fatalf("expected one PutMetricData call, got %d", len(cw.input))
	}
	d := cw.input[0].MetricData[0]
	if *d.MetricName != MetricStockAnomaly || *d.Value != 1 {
		t.Fatalf("unexpected datum %+v", d)
	}
	if len(d.Dimensions) != 2 || *d.Dimensions[0].Name != "product_id" {
		t.Fatalf("dimensions should be sorted by name, got %+v", d.Dimensions)
	}
}
