// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package metrics

import (
	"context"
	"testing"

	"github.com/cilium/hive"
	"github.com/cilium/hive/cell"
	"github.com/cilium/hive/hivetest"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestGetCounterValue(t *testing.T) {
	c := ScriptRegistrations.WithLabelValues(LabelValueOutcomeSuccess)
	before := GetCounterValue(c)
	c.Inc()
	c.Inc()
	require.Equal(t, before+2, GetCounterValue(c))
}

func TestGathererExposesNamespace(t *testing.T) {
	Calls.WithLabelValues(LabelValueModeDirect, LabelValueOutcomeSuccess).Inc()

	families, err := Gatherer().Gather()
	require.NoError(t, err)

	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	require.Contains(t, names, "luamodule_call_total")
}

func TestCellServesMetrics(t *testing.T) {
	h := hive.New(
		Cell,
	)
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	h.RegisterFlags(flags)
	require.NoError(t, flags.Set("prometheus-serve-addr", "127.0.0.1:0"))

	log := hivetest.Logger(t)
	require.NoError(t, h.Start(log, context.TODO()))
	require.NoError(t, h.Stop(log, context.TODO()))
}

func TestCellDisabledByDefault(t *testing.T) {
	var cfg Config
	h := hive.New(
		Cell,
		cell.Invoke(func(c Config) { cfg = c }),
	)

	log := hivetest.Logger(t)
	require.NoError(t, h.Start(log, context.TODO()))
	require.Empty(t, cfg.PrometheusServeAddr)
	require.NoError(t, h.Stop(log, context.TODO()))
}
