package xhsnote

import (
	"embed"
	"io/fs"
)

// Template file names inside the template directory.
const (
	TasksFile    = "tasks.yaml"
	PersonasFile = "agents.yaml"
)

//go:embed config/*.yaml
var embedded embed.FS

// Templates returns the embedded task templates and agent personas.
func Templates() fs.FS {
	sub, err := fs.Sub(embedded, "config")
	if err != nil {
		panic(err) // embedded path is fixed at compile time
	}
	return sub
}
