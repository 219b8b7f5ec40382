package scan

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// NewLogger creates a named structured logger at the given level.
// Unrecognized level names fall back to info.
func NewLogger(name, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Output: os.Stderr,
		Level:  hclog.LevelFromString(level),
	})
}
