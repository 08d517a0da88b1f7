package source

import "github.com/ardnew/muster/pkg"

// Predefined errors (sentinel values).
var (
	ErrNotFound = pkg.NewError("not found")
	ErrRead     = pkg.NewError("failed to read input")
	ErrDecode   = pkg.NewError("failed to decode dictionary")
	ErrStore    = pkg.NewError("template store failure")
	ErrAssign   = pkg.NewError("invalid assignment")
	ErrEval     = pkg.NewError("expression evaluation failed")
)
