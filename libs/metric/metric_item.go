package metric

import (
	"fmt"

	gometrics "github.com/rcrowley/go-metrics"
	jsoniter "github.com/json-iterator/go"
)

// MetricItem is one self-describing metrics module; implementations render
// their current value as a JSON string for the rpc metrics route.
type MetricItem interface {
	JSONString() string
}

// CounterItem wraps a go-metrics counter.
type CounterItem struct {
	c gometrics.Counter
}

func NewCounterItem() *CounterItem {
	return &CounterItem{c: gometrics.NewCounter()}
}

func (ci *CounterItem) Inc(delta int64) { ci.c.Inc(delta) }
func (ci *CounterItem) Count() int64    { return ci.c.Count() }

func (ci *CounterItem) JSONString() string {
	return fmt.Sprintf(`{"count":%d}`, ci.c.Count())
}

// MeterItem wraps a go-metrics meter: a counter with 1/5/15 minute moving
// rates.
type MeterItem struct {
	m gometrics.Meter
}

func NewMeterItem() *MeterItem {
	return &MeterItem{m: gometrics.NewMeter()}
}

func (mi *MeterItem) Mark(n int64) { mi.m.Mark(n) }

func (mi *MeterItem) JSONString() string {
	s, _ := jsoniter.MarshalToString(map[string]interface{}{
		"count":    mi.m.Count(),
		"rate_1m":  mi.m.Rate1(),
		"rate_5m":  mi.m.Rate5(),
		"rate_15m": mi.m.Rate15(),
		"rate_avg": mi.m.RateMean(),
	})
	return s
}

// GaugeItem wraps a go-metrics gauge.
type GaugeItem struct {
	g gometrics.Gauge
}

func NewGaugeItem() *GaugeItem {
	return &GaugeItem{g: gometrics.NewGauge()}
}

func (gi *GaugeItem) Update(v int64) { gi.g.Update(v) }

func (gi *GaugeItem) JSONString() string {
	return fmt.Sprintf(`{"value":%d}`, gi.g.Value())
}

// FuncItem renders whatever the callback returns; used to surface live
// component snapshots (eg. the consensus round state).
type FuncItem struct {
	fn func() string
}

func NewFuncItem(fn func() string) *FuncItem {
	return &FuncItem{fn: fn}
}

func (fi *FuncItem) JSONString() string {
	return fi.fn()
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
