package security

import "errors"

// Policy errors. Callers classify with errors.Is; the protocol handler
// maps each kind to its fixed JSON-RPC error code.
var (
	// ErrPermissionDenied marks a sandbox or auth policy violation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidPath marks a malformed or traversal-attempting path.
	ErrInvalidPath = errors.New("invalid path")
)
