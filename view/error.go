package view

import "github.com/ardnew/muster/pkg"

// Conditions reported through the engine's logger. Rendering never returns
// them to the caller.
var (
	ErrMaxDepthExceeded = pkg.NewError("maximum expansion depth exceeded")
	ErrRecovered        = pkg.NewError("recovered from panic")
)
