package workproduct

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"forge/internal/outputs"
)

// Current schema version - increment when indexEntry changes.
const diskSchemaVersion uint16 = 1

// DiskStore keeps work products in an incremental directory:
//
//	<dir>/index/<hash(unit)>.mp   msgpack index entry
//	<dir>/files/<hash(unit)>/...  saved artifacts
//
// Thread-safe for concurrent access.
type DiskStore struct {
	mu  sync.RWMutex
	dir string
}

type indexEntry struct {
	Schema  uint16
	Product WorkProduct
}

// OpenDiskStore creates the directory layout if needed.
func OpenDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("incremental directory not set")
	}
	for _, sub := range []string{"index", "files"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create incremental dir: %w", err)
		}
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the root of the store.
func (s *DiskStore) Dir() string { return s.dir }

func unitKey(unit string) string {
	sum := sha256.Sum256([]byte(unit))
	return hex.EncodeToString(sum[:16])
}

func (s *DiskStore) indexPath(unit string) string {
	return filepath.Join(s.dir, "index", unitKey(unit)+".mp")
}

func (s *DiskStore) filesDir(unit string) string {
	return filepath.Join(s.dir, "files", unitKey(unit))
}

// Path returns the absolute location of a saved file.
func (s *DiskStore) Path(wp WorkProduct, f SavedFile) string {
	return filepath.Join(s.filesDir(wp.Unit), f.Name)
}

// Lookup reads the index entry of unit.
func (s *DiskStore) Lookup(unit string) (WorkProduct, bool, error) {
	if s == nil {
		return WorkProduct{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 -- path is derived from the incremental directory
	data, err := os.ReadFile(s.indexPath(unit))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return WorkProduct{}, false, nil
		}
		return WorkProduct{}, false, err
	}
	var entry indexEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return WorkProduct{}, false, fmt.Errorf("decode work product %s: %w", unit, err)
	}
	if entry.Schema != diskSchemaVersion {
		return WorkProduct{}, false, fmt.Errorf("%s: %w (have %d, want %d)", unit, ErrSchemaChanged, entry.Schema, diskSchemaVersion)
	}
	if entry.Product.Unit != unit {
		return WorkProduct{}, false, nil
	}
	for _, f := range entry.Product.Files {
		if _, err := os.Stat(s.Path(entry.Product, f)); err != nil {
			return WorkProduct{}, false, fmt.Errorf("work product %s: saved %s file: %w", unit, f.Kind, errors.Join(ErrMissingFile, err))
		}
	}
	return entry.Product, true, nil
}

// Save copies the emitted files into the store and records wp under wp.Unit.
// files maps each saved kind to the path the backend emitted it at.
func (s *DiskStore) Save(wp WorkProduct, files map[outputs.Kind]string) (WorkProduct, error) {
	if s == nil {
		return wp, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.filesDir(wp.Unit)
	if err := os.RemoveAll(dir); err != nil {
		return wp, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return wp, err
	}
	kinds := make([]outputs.Kind, 0, len(files))
	for k := range files {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	wp.Files = make([]SavedFile, 0, len(kinds))
	for _, kind := range kinds {
		name := "unit." + kind.Extension()
		if err := outputs.CopyInto(files[kind], filepath.Join(dir, name)); err != nil {
			return wp, fmt.Errorf("save %s %s: %w", wp.Unit, kind, err)
		}
		wp.Files = append(wp.Files, SavedFile{Kind: kind, Name: name})
	}

	data, err := msgpack.Marshal(&indexEntry{Schema: diskSchemaVersion, Product: wp})
	if err != nil {
		return wp, err
	}
	p := s.indexPath(wp.Unit)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return wp, err
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return wp, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return wp, err
	}
	// atomic replace
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return wp, err
	}
	return wp, nil
}

// Materialize places the saved files of wp at the paths dest returns.
func (s *DiskStore) Materialize(wp WorkProduct, dest func(outputs.Kind) string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range wp.Files {
		dst := dest(f.Kind)
		if dst == "" {
			continue
		}
		if err := outputs.CopyInto(s.Path(wp, f), dst); err != nil {
			return fmt.Errorf("materialize %s %s: %w", wp.Unit, f.Kind, err)
		}
	}
	return nil
}

// Drop forgets unit.
func (s *DiskStore) Drop(unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.indexPath(unit)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.RemoveAll(s.filesDir(unit))
}

// DropAll invalidates the whole store.
func (s *DiskStore) DropAll() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.dir)
}
