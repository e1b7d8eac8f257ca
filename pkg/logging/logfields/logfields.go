// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package logfields defines common logging fields which are used across packages
package logfields

const (
	// LogSubsys is the field denoting the subsystem when logging
	LogSubsys = "subsys"

	// Error is the field for an error
	Error = "error"

	// Module is the name of a scripted module
	Module = "module"

	// ModuleID is the registry index of a scripted module
	ModuleID = "moduleID"

	// Function is the name of a scripted function
	Function = "function"

	// Alias is the name a module is imported under
	Alias = "alias"

	// ArgCount is the number of arguments passed to a scripted function
	ArgCount = "argCount"

	// ScriptSHA is the SHA1 digest identifying a script on the store
	ScriptSHA = "scriptSHA"

	// ScriptSize is the length of an assembled script in bytes
	ScriptSize = "scriptSize"

	// ClosureSize is the number of modules in an import closure
	ClosureSize = "closureSize"

	// Mode is the execution mode of a call (direct or batch)
	Mode = "mode"

	// Slot is the position of a queued call within a batch
	Slot = "slot"

	// Backend is the name of a script store backend
	Backend = "backend"

	// Address is a network address
	Address = "address"

	// Version is a version string
	Version = "version"

	// Path is a filesystem path
	Path = "path"

	// Duration is the duration of an operation
	Duration = "duration"

	// Count is a generic count
	Count = "count"
)
