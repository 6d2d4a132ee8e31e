package outputs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RenameOrCopyRemove moves src to dst, falling back to copy-then-remove when a
// plain rename is impossible (e.g. across devices).
func RenameOrCopyRemove(src, dst string) error {
	renameErr := os.Rename(src, dst)
	if renameErr == nil {
		return nil
	}
	if _, statErr := os.Stat(src); statErr != nil {
		return renameErr
	}
	if err := CopyFile(src, dst); err != nil {
		return errors.Join(renameErr, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied %q but failed to remove it: %w", src, err)
	}
	return nil
}

// CopyInto copies src to dst, creating dst's directory. dst always ends up as
// a new file, never sharing an inode with src, so later in-place writes to
// either side stay invisible to the other.
func CopyInto(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	return CopyFile(src, dst)
}

// CopyFile copies src to dst through a temp file in dst's directory.
func CopyFile(src, dst string) (err error) {
	// #nosec G304 -- paths come from build output configuration
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
