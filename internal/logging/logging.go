// Package logging configures the process-wide hclog hierarchy.
package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

var root hclog.Logger = hclog.NewNullLogger()

// Setup initializes the root logger. level is one of trace, debug, info,
// warn, error; unknown values fall back to info. When path is non-empty the
// log is appended there instead of stderr.
func Setup(level, path string) error {
	var out io.Writer = os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
	}
	root = hclog.New(&hclog.LoggerOptions{
		Name:   "xiino",
		Level:  hclog.LevelFromString(level),
		Output: out,
	})
	return nil
}

// Named returns a child of the root logger for a subsystem: "server",
// "html", "image", "fetch", "cookies".
func Named(name string) hclog.Logger {
	return root.Named(name)
}
