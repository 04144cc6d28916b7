package metric

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{name: "TEST"}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{name: "TEST"}
	assert.NotNil(t, metric.SetMetrics("TEST", mockItem), "registering label(TEST) twice must fail")

	assert.Nil(t, metric.SetMetrics("TEST1", mockItem), "label(TEST1) should register")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")
}

func TestMetricSet_GetAlllabels(t *testing.T) {
	metric := newTestMetric()

	labels := metric.GetAlllabels()

	assert.Equal(t, 1, len(labels), "len(labels) == 1")
	assert.Equal(t, "TEST", labels[0], "labels[0] ==\"TEST\"")
}

func TestMetricItems(t *testing.T) {
	counter := NewCounterItem()
	counter.Inc(3)
	assert.Equal(t, `{"count":3}`, counter.JSONString())

	gauge := NewGaugeItem()
	gauge.Update(42)
	assert.Equal(t, `{"value":42}`, gauge.JSONString())

	meter := NewMeterItem()
	meter.Mark(5)
	assert.True(t, strings.Contains(meter.JSONString(), `"count":5`))

	fn := NewFuncItem(func() string { return `{"x":1}` })
	assert.Equal(t, `{"x":1}`, fn.JSONString())
}
