// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package scriptstore

import (
	"context"
	"testing"

	"github.com/cilium/hive"
	"github.com/cilium/hive/cell"
	"github.com/cilium/hive/hivetest"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestCellMemoryBackend(t *testing.T) {
	var client Client
	h := hive.New(
		Cell,
		cell.Invoke(func(c Client) { client = c }),
	)
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	h.RegisterFlags(flags)
	require.NoError(t, flags.Set(ScriptStore, MemoryBackendName))

	log := hivetest.Logger(t)
	require.NoError(t, h.Start(log, context.TODO()))
	t.Cleanup(func() { require.NoError(t, h.Stop(log, context.TODO())) })

	require.Equal(t, MemoryBackendName, client.Name())
	handle, err := client.RegisterScript(context.TODO(), `return "ok"`)
	require.NoError(t, err)
	v, err := client.EvalScript(context.TODO(), handle)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestCellRejectsUnknownBackend(t *testing.T) {
	h := hive.New(
		Cell,
		cell.Invoke(func(Client) {}),
	)
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	h.RegisterFlags(flags)
	require.NoError(t, flags.Set(ScriptStore, "etcd"))

	require.Error(t, h.Start(hivetest.Logger(t), context.TODO()))
}
