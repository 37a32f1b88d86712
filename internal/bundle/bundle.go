// Package bundle implements the shared immutable TeX package bundle (C4):
// loaded once at startup, held by shared reference, never cloned per
// request. Cold-cache downloads during a live request are disabled; the
// bundle loaded here is authoritative for the process lifetime.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/tachyontex/tachyon-tex/internal/storage"
)

// Package describes one bundled TeX package for the GET /packages surface.
type Package struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Bundle is the immutable, shared TeX package bundle: file bytes keyed by
// path, plus a package index built at load time. Safe for concurrent reads
// by every request handler; never mutated after Load returns.
type Bundle struct {
	files    map[string][]byte
	packages []Package
}

// Files returns the bundle's name->bytes map. Callers must not mutate it.
func (b *Bundle) Files() map[string][]byte { return b.files }

// Packages returns the package index for GET /packages, sorted by name.
func (b *Bundle) Packages() []Package { return b.packages }

// Get returns the bytes of a single bundled file by path.
func (b *Bundle) Get(name string) ([]byte, bool) {
	v, ok := b.files[name]
	return v, ok
}

// LoadLocal builds a Bundle by walking a local directory tree, mirroring
// the conservative layout a pre-shipped TeX distribution uses on disk. This
// is the default source (BUNDLE_SOURCE=local, the zero value).
func LoadLocal(dir string) (*Bundle, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: load local dir %s: %w", dir, err)
	}
	return build(files), nil
}

// LoadMinIO downloads a single archive object (a zip of the bundle tree)
// from an object store and extracts it in memory, adapted from the
// teacher's MinIOStorage.DownloadFile path. This is BUNDLE_SOURCE=minio.
func LoadMinIO(ctx context.Context, cfg *storage.MinIOConfig, archiveKey string) (*Bundle, error) {
	client, err := storage.NewMinIOStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("bundle: minio client: %w", err)
	}

	rc, err := client.DownloadFile(ctx, archiveKey)
	if err != nil {
		return nil, fmt.Errorf("bundle: download %s: %w", archiveKey, err)
	}
	defer rc.Close()

	archive, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("bundle: read archive: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("bundle: archive is not a valid zip: %w", err)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		f, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("bundle: open %s: %w", zf.Name, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("bundle: read %s: %w", zf.Name, err)
		}
		files[zf.Name] = data
	}

	return build(files), nil
}

// Warmup is the internal boot-time request that forces package indexes to
// be populated. It is a pure read over the already-built Bundle; no
// network access occurs.
func (b *Bundle) Warmup(_ context.Context) {
	_ = b.Packages()
}

func build(files map[string][]byte) *Bundle {
	b := &Bundle{files: files}
	b.packages = indexPackages(files)
	return b
}

// indexPackages derives a flat package index from every .sty or .cls file
// anywhere in the bundle, named by the file's base name without extension
// and categorized by the name of its containing directory. Real bundle
// layouts vary; this conservative scan never fails on an unexpected shape,
// it simply yields an empty index.
func indexPackages(files map[string][]byte) []Package {
	seen := make(map[string]Package)
	for name := range files {
		dir, base := filepath.Split(name)
		dir = filepath.ToSlash(filepath.Clean(dir))
		if base == "" {
			continue
		}
		category := filepath.Base(dir)
		pkgName := base
		if ext := filepath.Ext(pkgName); ext == ".sty" || ext == ".cls" {
			pkgName = pkgName[:len(pkgName)-len(ext)]
		} else {
			continue
		}
		seen[pkgName] = Package{
			Name:        pkgName,
			Description: fmt.Sprintf("bundled package %s", pkgName),
			Category:    category,
		}
	}

	out := make([]Package, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
