// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
)

// Handle identifies a script registered with a store. Scripts are content
// addressed: the SHA is the hex encoded SHA1 digest of the source, which is
// what Redis uses for EVALSHA. The source is kept so that backends can
// resend it when the store lost the script.
type Handle struct {
	SHA    string
	Source string
}

// NewHandle returns the handle of source.
func NewHandle(source string) Handle {
	sum := sha1.Sum([]byte(source))
	return Handle{
		SHA:    hex.EncodeToString(sum[:]),
		Source: source,
	}
}

// Client is implemented by every store client a module can be called with.
type Client interface {
	// RegisterScript makes source known to the store and returns its
	// handle.
	RegisterScript(ctx context.Context, source string) (Handle, error)
}

// Conn is a store client which evaluates scripts immediately.
type Conn interface {
	Client

	// EvalScript evaluates the script identified by h with the given
	// generic string arguments and returns the raw result.
	EvalScript(ctx context.Context, h Handle, args ...string) (any, error)
}

// PostProcessFunc converts the raw result of a queued evaluation into the
// value reported by Batch.Exec.
type PostProcessFunc func(raw any) (any, error)

// Batch is a store client which queues evaluations and executes them
// together, like a Redis pipeline.
type Batch interface {
	Client

	// QueueScript queues an evaluation of h and returns the slot its result
	// will occupy in the list returned by Exec.
	QueueScript(ctx context.Context, h Handle, args ...string) int

	// SetPostProcess installs fn as the post-processing hook of slot.
	SetPostProcess(slot int, fn PostProcessFunc)

	// Exec executes all queued evaluations. Results are returned in queue
	// order. A slot whose evaluation or post-processing failed holds the
	// error, and the first such error is also returned.
	Exec(ctx context.Context) ([]any, error)
}
