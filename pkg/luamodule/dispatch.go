// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
	"github.com/leifkb/redis-luamodules/pkg/metrics"
)

// Register assembles the module script and registers it with client, unless
// that already happened, and returns its handle. The handle is cached on the
// module and shared by all of its functions. Since handles are content
// addressed the cached handle stays valid for other clients; backends
// resend the source to stores which do not know it yet.
func (m *Module) Register(ctx context.Context, client Client) (Handle, error) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	if m.handle != nil {
		return *m.handle, nil
	}

	source := m.Source()
	h, err := client.RegisterScript(ctx, source)
	if err != nil {
		metrics.ScriptRegistrations.WithLabelValues(metrics.LabelValueOutcomeFail).Inc()
		m.reg.logger.Warn("Unable to register module script",
			logfields.Module, m.name,
			logfields.Error, err,
		)
		return Handle{}, err
	}
	metrics.ScriptRegistrations.WithLabelValues(metrics.LabelValueOutcomeSuccess).Inc()
	m.reg.logger.Info("Registered module script",
		logfields.Module, m.name,
		logfields.ScriptSHA, h.SHA,
	)

	m.handle = &h
	return h, nil
}

// Call calls the named function with the module's default client. See
// CallWith.
func (m *Module) Call(ctx context.Context, function string, args ...any) (any, error) {
	return m.CallWith(ctx, nil, function, args...)
}

// CallWith calls the named function on client, or on the module's default
// client if client is nil. Arguments are encoded as a JSON array and the
// result is decoded from JSON, so numbers come back as float64, arrays as
// []any and objects as map[string]any. A function returning nothing yields
// nil.
//
// If client is a Batch the call is only queued and the batch itself is
// returned. The decoded result shows up in the batch's Exec result list at
// the slot of this call.
//
// Errors returned by the store are passed through unchanged.
func (m *Module) CallWith(ctx context.Context, client Client, function string, args ...any) (any, error) {
	spec, err := m.lookup(function)
	if err != nil {
		return nil, err
	}
	if !spec.IsArgCountValid(len(args)) {
		return nil, &ArgCountError{
			Module:   m.name,
			Function: function,
			Expected: spec.DescribeArgCountRange(),
			Got:      len(args),
		}
	}

	if client == nil {
		client = m.client
	}
	if client == nil {
		return nil, fmt.Errorf("calling %s.%s: %w", m.name, function, ErrMissingClient)
	}
	batch, isBatch := client.(Batch)
	conn, isConn := client.(Conn)
	if !isBatch && !isConn {
		return nil, fmt.Errorf("calling %s.%s with %T: %w", m.name, function, client, ErrUnsupportedClient)
	}

	argv, err := m.encodeArgs(function, args)
	if err != nil {
		return nil, err
	}

	h, err := m.Register(ctx, client)
	if err != nil {
		return nil, err
	}

	logger := m.reg.logger.With(
		logfields.Module, m.name,
		logfields.Function, function,
		logfields.ArgCount, len(args),
	)

	if isBatch {
		slot := batch.QueueScript(ctx, h, argv...)
		batch.SetPostProcess(slot, decodeBatchResult)
		metrics.Calls.WithLabelValues(metrics.LabelValueModeBatch, metrics.LabelValueOutcomeQueued).Inc()
		logger.Debug("Queued scripted function call", logfields.Slot, slot)
		return batch, nil
	}

	start := time.Now()
	raw, err := conn.EvalScript(ctx, h, argv...)
	metrics.CallDuration.WithLabelValues(metrics.LabelValueModeDirect).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Calls.WithLabelValues(metrics.LabelValueModeDirect, metrics.LabelValueOutcomeFail).Inc()
		logger.Debug("Scripted function call failed", logfields.Error, err)
		return nil, err
	}
	v, err := decodeResult(raw)
	if err != nil {
		metrics.Calls.WithLabelValues(metrics.LabelValueModeDirect, metrics.LabelValueOutcomeFail).Inc()
		return nil, fmt.Errorf("calling %s.%s: %w", m.name, function, err)
	}
	metrics.Calls.WithLabelValues(metrics.LabelValueModeDirect, metrics.LabelValueOutcomeSuccess).Inc()
	logger.Debug("Called scripted function", logfields.Duration, time.Since(start))
	return v, nil
}

// decodeBatchResult decodes the result of a batched call. Batches only run
// the hook of calls which executed without error.
func decodeBatchResult(raw any) (any, error) {
	v, err := decodeResult(raw)
	outcome := metrics.LabelValueOutcomeSuccess
	if err != nil {
		outcome = metrics.LabelValueOutcomeFail
	}
	metrics.Calls.WithLabelValues(metrics.LabelValueModeBatch, outcome).Inc()
	return v, err
}

func (m *Module) lookup(function string) (FunctionSpec, error) {
	if isReserved(function) {
		return FunctionSpec{}, &UnknownFunctionError{Module: m.name, Function: function}
	}
	spec, ok := m.functions[function]
	if !ok {
		return FunctionSpec{}, &UnknownFunctionError{Module: m.name, Function: function}
	}
	return spec, nil
}

// encodeArgs returns the generic arguments of a module script call: the
// function name, the JSON encoded arguments and, if enabled, the timestamp.
func (m *Module) encodeArgs(function string, args []any) ([]string, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments of %s.%s: %w", m.name, function, err)
	}

	argv := []string{function, string(data)}
	if m.timestamp {
		argv = append(argv, strconv.FormatInt(m.reg.clock().UnixMilli(), 10))
	}
	return argv, nil
}

// decodeResult decodes the JSON document returned by a module script.
func decodeResult(raw any) (any, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("unexpected script result of type %T", raw)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding script result: %w", err)
	}
	return out, nil
}
