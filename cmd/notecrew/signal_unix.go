//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals stop the server and cancel an in-flight `notecrew run`.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
