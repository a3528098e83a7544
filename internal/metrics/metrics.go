// Package metrics collects per-run measurements of simulation calls and case
// outcomes on a private Prometheus registry.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Prometheus metric names.
const (
	MetricSimulationsTotal          = "erpsim_simulations_total"
	MetricSimulationDurationSeconds = "erpsim_simulation_duration_seconds"
	MetricCasesTotal                = "erpsim_cases_total"
)

// Simulation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeAPIError = "api_error"
	OutcomeError    = "error"
)

// Case results.
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// Collector records simulation and case metrics.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	registry *prometheus.Registry

	simulations *prometheus.CounterVec
	duration    prometheus.Histogram
	cases       *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry so repeated runs in
// one process never collide with the default registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		simulations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSimulationsTotal,
				Help: "Total number of mapping simulation calls by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSimulationDurationSeconds,
				Help:    "Duration of mapping simulation calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		cases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCasesTotal,
				Help: "Total number of executed example cases by result.",
			},
			[]string{"result"},
		),
	}
	c.registry.MustRegister(c.simulations, c.duration, c.cases)
	return c
}

// ObserveSimulation records one call to the simulation service.
func (c *Collector) ObserveSimulation(outcome string, d time.Duration) {
	c.simulations.WithLabelValues(outcome).Inc()
	c.duration.Observe(d.Seconds())
}

// ObserveCase records one case result.
func (c *Collector) ObserveCase(pass bool) {
	result := ResultFail
	if pass {
		result = ResultPass
	}
	c.cases.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Gather collects all metric families from the registry.
func (c *Collector) Gather() ([]*dto.MetricFamily, error) {
	return c.registry.Gather()
}

// Summary is a plain view of the collected metrics.
type Summary struct {
	Simulations     map[string]int `json:"simulations"`
	Cases           map[string]int `json:"cases"`
	SimulationCount uint64         `json:"simulation_count"`
	TotalSeconds    float64        `json:"total_seconds"`
	MeanSeconds     float64        `json:"mean_seconds"`
}

// Summary gathers the registry into a Summary.
func (c *Collector) Summary() (Summary, error) {
	families, err := c.Gather()
	if err != nil {
		return Summary{}, fmt.Errorf("gather metrics: %w", err)
	}

	s := Summary{
		Simulations: map[string]int{},
		Cases:       map[string]int{},
	}
	for _, mf := range families {
		switch mf.GetName() {
		case MetricSimulationsTotal:
			collectCounters(mf, "outcome", s.Simulations)
		case MetricCasesTotal:
			collectCounters(mf, "result", s.Cases)
		case MetricSimulationDurationSeconds:
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				s.SimulationCount += h.GetSampleCount()
				s.TotalSeconds += h.GetSampleSum()
			}
		}
	}
	if s.SimulationCount > 0 {
		s.MeanSeconds = s.TotalSeconds / float64(s.SimulationCount)
	}
	return s, nil
}

func collectCounters(mf *dto.MetricFamily, label string, into map[string]int) {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				into[lp.GetValue()] += int(m.GetCounter().GetValue())
			}
		}
	}
}

// Lines renders the summary as sorted "key value" lines for text output.
func (s Summary) Lines() []string {
	var lines []string
	for _, k := range sortedKeys(s.Simulations) {
		lines = append(lines, fmt.Sprintf("%s{outcome=%q} %d", MetricSimulationsTotal, k, s.Simulations[k]))
	}
	for _, k := range sortedKeys(s.Cases) {
		lines = append(lines, fmt.Sprintf("%s{result=%q} %d", MetricCasesTotal, k, s.Cases[k]))
	}
	lines = append(lines,
		fmt.Sprintf("%s_count %d", MetricSimulationDurationSeconds, s.SimulationCount),
		fmt.Sprintf("%s_sum %.3f", MetricSimulationDurationSeconds, s.TotalSeconds),
	)
	return lines
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
