// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package luamodule

import (
	"errors"
	"fmt"
)

var (
	// ErrMutationAfterCompile is returned when imports are added to a module
	// whose script has already been assembled.
	ErrMutationAfterCompile = errors.New("imports cannot be added after the module script has been assembled")

	// ErrMissingClient is returned when a call is made without a client and
	// the module was created without a default client.
	ErrMissingClient = errors.New("no store client given and module has no default client")

	// ErrUnsupportedClient is returned when a client is neither a Conn nor a
	// Batch.
	ErrUnsupportedClient = errors.New("store client supports neither direct nor batched evaluation")
)

// DefinitionError is returned when a module or function definition is
// malformed. It is raised while defining modules, never at call time.
type DefinitionError struct {
	Module   string
	Function string
	Reason   string
}

func (e *DefinitionError) Error() string {
	switch {
	case e.Module != "" && e.Function != "":
		return fmt.Sprintf("invalid definition of %s.%s: %s", e.Module, e.Function, e.Reason)
	case e.Module != "":
		return fmt.Sprintf("invalid definition of module %s: %s", e.Module, e.Reason)
	case e.Function != "":
		return fmt.Sprintf("invalid definition of function %s: %s", e.Function, e.Reason)
	default:
		return "invalid definition: " + e.Reason
	}
}

func definitionErrorf(format string, args ...any) *DefinitionError {
	return &DefinitionError{Reason: fmt.Sprintf(format, args...)}
}

// withModule returns err annotated with the module name if it is a
// DefinitionError which does not name one yet.
func withModule(err error, module string) error {
	var de *DefinitionError
	if errors.As(err, &de) && de.Module == "" {
		annotated := *de
		annotated.Module = module
		return &annotated
	}
	return err
}

// withFunction is the function name counterpart of withModule.
func withFunction(err error, function string) error {
	var de *DefinitionError
	if errors.As(err, &de) && de.Function == "" {
		annotated := *de
		annotated.Function = function
		return &annotated
	}
	return err
}

// ArgCountError is returned when a function is called with a number of
// arguments outside of its accepted range. It is raised before any store
// interaction.
type ArgCountError struct {
	Module   string
	Function string
	Expected string
	Got      int
}

func (e *ArgCountError) Error() string {
	return fmt.Sprintf("%s.%s takes %s arguments (%d given)", e.Module, e.Function, e.Expected, e.Got)
}

// UnknownFunctionError is returned when a call names a function the module
// does not define, or a reserved name.
type UnknownFunctionError struct {
	Module   string
	Function string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("module %s has no function %q", e.Module, e.Function)
}
