package repl

import "github.com/ardnew/muster/pkg"

// Sentinel errors.
var (
	ErrOutOfBounds    = pkg.NewError("index out of range")
	ErrEditDeclined   = pkg.NewError("decline edit")
	ErrUndefined      = pkg.NewError("undefined index")
	ErrUsage          = pkg.NewError("invalid command usage")
	ErrUnknownCommand = pkg.NewError("unknown command (try 'help')")
)
