// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package metrics holds prometheus metrics objects and related utility functions. It
// does not abstract away the prometheus client but the caller rarely needs to
// refer to prometheus directly.
package metrics

// Adding a metric
// - Add a metric object of the appropriate type as an exported variable
// - Register the new object in the init function

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

var (
	registry = prometheus.NewPedanticRegistry()

	// Namespace is used to scope metrics of this project. It is prepended to
	// metric names and separated with a '_'
	Namespace = "luamodule"

	// SubsystemScript scopes metrics about assembling and registering scripts
	SubsystemScript = "script"

	// SubsystemCall scopes metrics about calls of scripted functions
	SubsystemCall = "call"

	// SubsystemStore scopes metrics about the script store backends
	SubsystemStore = "store"

	// Labels

	// LabelOutcome indicates whether an operation succeeded
	LabelOutcome = "outcome"

	// LabelMode is the execution mode of a call
	LabelMode = "mode"

	// LabelBackend is the script store backend
	LabelBackend = "backend"

	// LabelValueOutcomeSuccess is used as a successful outcome of an operation
	LabelValueOutcomeSuccess = "success"

	// LabelValueOutcomeFail is used as an unsuccessful outcome of an operation
	LabelValueOutcomeFail = "fail"

	// LabelValueOutcomeQueued is used for batched operations which have not
	// executed yet
	LabelValueOutcomeQueued = "queued"

	// LabelValueModeDirect marks calls executed immediately
	LabelValueModeDirect = "direct"

	// LabelValueModeBatch marks calls queued on a batch
	LabelValueModeBatch = "batch"

	// Script

	// ScriptRegistrations counts script registrations with the store
	ScriptRegistrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemScript,
		Name:      "registrations_total",
		Help:      "Number of module scripts registered with the store, tagged by outcome",
	}, []string{LabelOutcome})

	// ScriptAssemblyDuration is the time spent linking a module graph into a
	// single script
	ScriptAssemblyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemScript,
		Name:      "assembly_duration_seconds",
		Help:      "Duration of assembling a module script from its import closure",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	// ScriptClosureSize is the number of modules linked into assembled scripts
	ScriptClosureSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemScript,
		Name:      "closure_modules",
		Help:      "Number of modules in the import closure of assembled scripts",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})

	// Call

	// Calls counts calls of scripted functions. Batched calls are counted as
	// queued, then by outcome once the batch result reaches them.
	Calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemCall,
		Name:      "total",
		Help:      "Number of scripted function calls, tagged by mode and outcome",
	}, []string{LabelMode, LabelOutcome})

	// CallDuration is the duration of direct calls including the round trip
	// to the store
	CallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemCall,
		Name:      "duration_seconds",
		Help:      "Duration of scripted function calls",
	}, []string{LabelMode})

	// Store

	// NoScriptFallbacks counts evaluations that had to resend the script
	// source because the store did not know the digest
	NoScriptFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemStore,
		Name:      "noscript_fallbacks_total",
		Help:      "Number of evaluations retried with the full script source",
	}, []string{LabelBackend})
)

func init() {
	MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}))
	MustRegister(collectors.NewGoCollector())

	MustRegister(ScriptRegistrations)
	MustRegister(ScriptAssemblyDuration)
	MustRegister(ScriptClosureSize)

	MustRegister(Calls)
	MustRegister(CallDuration)

	MustRegister(NoScriptFallbacks)
}

// MustRegister adds the collector to the registry, exposing this metric to
// prometheus scrapes.
// It will panic on error.
func MustRegister(c prometheus.Collector) {
	registry.MustRegister(c)
}

// Gatherer returns the registry all metrics of this package are exposed
// through.
func Gatherer() prometheus.Gatherer {
	return registry
}

// GetCounterValue returns the current value
// stored for the counter
func GetCounterValue(m prometheus.Counter) float64 {
	var pm dto.Metric
	err := m.Write(&pm)
	if err == nil {
		return *pm.Counter.Value
	}
	return 0
}

// GetHistogramSampleCount returns the number of observations recorded by the
// histogram
func GetHistogramSampleCount(m prometheus.Histogram) uint64 {
	var pm dto.Metric
	err := m.Write(&pm)
	if err == nil {
		return pm.Histogram.GetSampleCount()
	}
	return 0
}
