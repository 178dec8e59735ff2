package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		"accounts.create_user.total":       "accounts_create_user_total",
		" accounts.update-user.duration_ms": "accounts_update_user_duration_ms",
		"9lives":                            "_9lives",
	}
	for input, expected := range cases {
		if got := MetricName(input); got != expected {
			t.Fatalf("MetricName(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestRecorder_CountsAndObservesWithFixedLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(Config{Registerer: registry})
	ctx := context.Background()

	recorder.IncCounter(ctx, "accounts.create_user.total", 1, map[string]string{"operation": "create_user", "status": "success"})
	recorder.IncCounter(ctx, "accounts.create_user.total", 2, map[string]string{
		"operation":  "create_user",
		"status":     "failure",
		"error_kind": "Conflict",
		"unexpected": "dropped",
	})
	recorder.ObserveHistogram(ctx, "accounts.create_user.duration_ms", 12, map[string]string{"operation": "create_user", "status": "success"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	var observed uint64
	for _, family := range families {
		switch family.GetName() {
		case "accounts_create_user_total":
			for _, metric := range family.GetMetric() {
				if len(metric.GetLabel()) != len(DefaultLabels) {
					t.Fatalf("expected %d labels, got %d", len(DefaultLabels), len(metric.GetLabel()))
				}
				if labelValue(metric, "status") == "failure" && labelValue(metric, "error_kind") != "Conflict" {
					t.Fatalf("expected error kind label on failure series")
				}
				total += metric.GetCounter().GetValue()
			}
		case "accounts_create_user_duration_ms":
			for _, metric := range family.GetMetric() {
				observed += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	if total != 3 {
		t.Fatalf("expected counter total 3, got %v", total)
	}
	if observed != 1 {
		t.Fatalf("expected one histogram sample, got %d", observed)
	}
}

func TestRecorder_ReusesCollectorsAcrossInstances(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewRecorder(Config{Registerer: registry})
	second := NewRecorder(Config{Registerer: registry})

	first.IncCounter(context.Background(), "accounts.get_user.total", 1, nil)
	second.IncCounter(context.Background(), "accounts.get_user.total", 1, nil)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == "accounts_get_user_total" {
			if got := family.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Fatalf("expected shared counter value 2, got %v", got)
			}
			return
		}
	}
	t.Fatalf("expected accounts_get_user_total to be registered")
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
