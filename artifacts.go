package arae

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unixpickle/essentials"
)

// ReconstructionPath returns the path of an epoch's
// reconstruction transcript.
func ReconstructionPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("epoch_%d_ae_generation.txt", epoch))
}

// SamplingPath returns the path of an epoch's sampled
// sentences.
func SamplingPath(dir string, epoch int) string {
	return filepath.Join(dir, fmt.Sprintf("epoch_%d_sampling.txt", epoch))
}

// OpenAppend opens a file for appending, creating it if
// needed.
func OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, essentials.AddCtx("open artifact", err)
	}
	return f, nil
}

// AppendLines appends one line per string to a file.
func AppendLines(path string, lines []string) error {
	f, err := OpenAppend(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			f.Close()
			return essentials.AddCtx("append lines", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return essentials.AddCtx("append lines", err)
	}
	if err := f.Close(); err != nil {
		return essentials.AddCtx("append lines", err)
	}
	return nil
}
