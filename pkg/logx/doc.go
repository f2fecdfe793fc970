// Package logx is taskctl's logging layer. It wraps zerolog behind a root
// logger that can be swapped at runtime, writing to the console, a JSON file
// or a condensed stderr alert sink.
package logx
