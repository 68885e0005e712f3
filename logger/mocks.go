package logger

import (
	"fmt"
	"io"
)

// MockLogger returns a debug-level logger writing human-readable lines to the
// given writer, typically ginkgo's GinkgoWriter.
func MockLogger(writer io.Writer) *Logger {
	logger, err := New(&Config{
		ConsoleWriters: []io.Writer{writer},
	})
	if err != nil {
		panic(fmt.Sprintf("failed to build test logger: %s", err))
	}
	return logger
}
