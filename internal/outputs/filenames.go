package outputs

import (
	"path/filepath"
	"strings"
)

// Filenames resolves where crate-level and per-unit artifacts live.
type Filenames struct {
	OutDir string
	Stem   string
	Types  Set
}

// Path is the final location of a crate-level artifact: <outdir>/<stem>.<ext>.
func (f Filenames) Path(kind Kind) string {
	return filepath.Join(f.OutDir, withExt(f.Stem, kind.Extension()))
}

// TempPath is the location of an intermediate artifact. With a unit name it is
// <outdir>/<stem>.<unit>.<ext>, otherwise the crate-level temporary
// <outdir>/<stem>.<ext>. Unit names already qualified with the stem are not
// prefixed twice.
func (f Filenames) TempPath(kind Kind, unit string) string {
	name := f.Stem
	if unit != "" {
		name += "." + strings.TrimPrefix(unit, f.Stem+".")
	}
	return filepath.Join(f.OutDir, withExt(name, kind.Extension()))
}

// NumberedObjectPath maps <dir>/<stem>.<ext> to <dir>/<stem>.0.<ext>, the name
// the link step expects for the first object of a crate.
func NumberedObjectPath(path string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	return filepath.Join(dir, stem+".0"+ext)
}

func withExt(name, ext string) string {
	if ext == "" {
		return name
	}
	return name + "." + ext
}
