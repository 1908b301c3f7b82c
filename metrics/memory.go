package metrics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-aggregator/types"
)

// MemoryMetrics keeps every instrument in process. It backs the "memory"
// metrics type and lets callers read values back through Snapshot.
type MemoryMetrics struct {
	counters   map[string]*MemoryCounter
	gauges     map[string]*MemoryGauge
	histograms map[string]*MemoryHistogram
	mu         sync.RWMutex
}

type MetricValue struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
}

func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]*MemoryCounter),
		gauges:     make(map[string]*MemoryGauge),
		histograms: make(map[string]*MemoryHistogram),
	}
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := buildKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, exists := m.counters[key]; exists {
		return counter
	}

	counter := &MemoryCounter{name: name, labels: copyLabels(labels)}
	m.counters[key] = counter
	return counter
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := buildKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gauge, exists := m.gauges[key]; exists {
		return gauge
	}

	gauge := &MemoryGauge{name: name, labels: copyLabels(labels)}
	m.gauges[key] = gauge
	return gauge
}

func (m *MemoryMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	key := buildKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[key]; exists {
		return histogram
	}

	histogram := &MemoryHistogram{
		name:    name,
		labels:  copyLabels(labels),
		buckets: make([]float64, len(buckets)),
		counts:  make([]uint64, len(buckets)+1),
	}
	copy(histogram.buckets, buckets)

	m.histograms[key] = histogram
	return histogram
}

// Snapshot lists every instrument ordered by name, then labels.
func (m *MemoryMetrics) Snapshot() []MetricValue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]MetricValue, 0, len(m.counters)+len(m.gauges)+len(m.histograms))

	for _, c := range m.counters {
		values = append(values, MetricValue{Name: c.name, Type: "counter", Labels: c.labels, Value: c.Get()})
	}
	for _, g := range m.gauges {
		values = append(values, MetricValue{Name: g.name, Type: "gauge", Labels: g.labels, Value: g.Get()})
	}
	for _, h := range m.histograms {
		values = append(values, MetricValue{Name: h.name, Type: "histogram", Labels: h.labels, Value: h.GetSum(), Count: h.GetCount()})
	}

	sort.Slice(values, func(i, j int) bool {
		if values[i].Name != values[j].Name {
			return values[i].Name < values[j].Name
		}
		return buildKey("", values[i].Labels) < buildKey("", values[j].Labels)
	})

	return values
}

func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	names := labelNames(labels)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range names {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	result := make(map[string]string, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}

type MemoryCounter struct {
	name   string
	labels map[string]string
	value  uint64
}

func (c *MemoryCounter) Inc() {
	c.Add(1)
}

func (c *MemoryCounter) Add(value float64) {
	if value < 0 {
		return
	}
	addFloat(&c.value, value)
}

func (c *MemoryCounter) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.value))
}

type MemoryGauge struct {
	name   string
	labels map[string]string
	value  uint64
}

func (g *MemoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.value, math.Float64bits(value))
}

func (g *MemoryGauge) Inc() { addFloat(&g.value, 1) }

func (g *MemoryGauge) Dec() { addFloat(&g.value, -1) }

func (g *MemoryGauge) Add(value float64) { addFloat(&g.value, value) }

func (g *MemoryGauge) Sub(value float64) { addFloat(&g.value, -value) }

func (g *MemoryGauge) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.value))
}

type MemoryHistogram struct {
	name    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     uint64
	count   uint64
}

func (h *MemoryHistogram) Observe(value float64) {
	atomic.AddUint64(&h.count, 1)
	addFloat(&h.sum, value)

	bucketIndex := len(h.buckets)
	for i, bucket := range h.buckets {
		if value <= bucket {
			bucketIndex = i
			break
		}
	}
	atomic.AddUint64(&h.counts[bucketIndex], 1)
}

func (h *MemoryHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *MemoryHistogram) GetCount() uint64 {
	return atomic.LoadUint64(&h.count)
}

func (h *MemoryHistogram) GetSum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

// addFloat adds delta to a float64 stored as bits.
func addFloat(bits *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(bits)
		updated := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, updated) {
			return
		}
	}
}
