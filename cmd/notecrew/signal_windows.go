//go:build windows

package main

import (
	"os"
)

// terminationSignals stop the server and cancel an in-flight `notecrew run`.
// Windows only delivers Ctrl+C.
var terminationSignals = []os.Signal{os.Interrupt}
