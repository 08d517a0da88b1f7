package cmd

import "github.com/ardnew/muster/pkg"

// Predefined errors (sentinel values).
var (
	ErrNoTemplate  = pkg.NewError("no template given (use a file, '-', or --key)")
	ErrReadInput   = pkg.NewError("read input")
	ErrWriteOutput = pkg.NewError("write output")
	ErrEncode      = pkg.NewError("encode dictionary")
	ErrWriteConfig = pkg.NewError("write configuration file")
	ErrFileExists  = pkg.NewError("file exists (use --force to overwrite)")
	ErrWatch       = pkg.NewError("watch inputs")
)
