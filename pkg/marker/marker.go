// Package marker manages the per-instance bootstrap markers: a zero-byte
// "done" file and a zero-byte file named after the init system. Their
// presence is the only record that an instance finished its first-time
// bootstrap.
package marker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/strata/pkg/guard"
	"github.com/cuemby/strata/pkg/resource"
)

// DoneFile is the name of the completion marker
const DoneFile = "done"

// Write creates the done and init-style markers in dir. Existing markers
// are truncated.
func Write(dir, initStyle string) error {
	names := []string{DoneFile}
	if initStyle != "" {
		names = append(names, initStyle)
	}
	for _, name := range names {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to write marker: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Done reports whether dir holds a done marker
func Done(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, DoneFile))
	return err == nil && info.Mode().IsRegular()
}

// Finalize declares the block writing the markers, skipped once done exists
func Finalize(name, dir, initStyle string) *resource.Resource {
	return resource.Block(name, func(context.Context) error {
		return Write(dir, initStyle)
	}).NotIf(guard.FileExists(filepath.Join(dir, DoneFile)))
}
