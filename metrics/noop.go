package metrics

import (
	"time"

	"github.com/saiset-co/sai-aggregator/types"
)

type noopMetrics struct{}

func NewNoop() types.MetricsManager {
	return noopMetrics{}
}

func (noopMetrics) Counter(string, map[string]string) types.Counter { return noopInstrument{} }

func (noopMetrics) Gauge(string, map[string]string) types.Gauge { return noopInstrument{} }

func (noopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return noopInstrument{}
}

type noopInstrument struct{}

func (noopInstrument) Inc() {}
func (noopInstrument) Dec() {}
func (noopInstrument) Add(float64) {}
func (noopInstrument) Sub(float64) {}
func (noopInstrument) Set(float64) {}
func (noopInstrument) Get() float64 { return 0 }
func (noopInstrument) Observe(float64) {}
func (noopInstrument) ObserveDuration(time.Time) {}
func (noopInstrument) GetCount() uint64 { return 0 }
func (noopInstrument) GetSum() float64 { return 0 }
