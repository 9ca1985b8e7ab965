//go:build linux

// Command proclife runs the process lifecycle scenarios.
package main

import (
	"github.com/jrepp/proclife/cmd/proclife/cmd"
	"github.com/jrepp/proclife/pkg/process"
)

func main() {
	// Children re-execute this binary; they leave here and never return.
	process.Dispatch()

	cmd.Execute()
}
