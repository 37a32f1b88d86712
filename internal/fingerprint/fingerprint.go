// Package fingerprint computes the content-addressed identifiers used as
// PDF Cache and Format Cache keys: a whole-project Fingerprint and a
// root-file PreambleHash, both streaming 64-bit xxHash values.
package fingerprint

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/tachyontex/tachyon-tex/internal/blobstore"
	"github.com/tachyontex/tachyon-tex/internal/project"
)

// DocumentBeginMarker is the LaTeX marker that ends the preamble region.
const DocumentBeginMarker = `\begin{document}`

// Resolver resolves a HashRef's content hash to its bytes, backed by a
// session's BlobStore. Kept as an interface so Of() and Preamble() do not
// depend on the concrete blobstore.Store type.
type Resolver interface {
	Get(hash uint64) ([]byte, bool)
}

// Of computes the 64-bit Fingerprint of a Project: for each filename in
// sorted byte order, feed the filename, a separator, and the content hash
// (direct for Text/Binary, resolved through resolver for HashRef) into a
// single streaming hasher. Deterministic and insensitive to map iteration
// order. Returns project.ErrUnresolvedBlob if a HashRef cannot be resolved.
func Of(p *project.Project, resolver Resolver) (uint64, error) {
	names := sortedNames(p)

	h := xxhash.New()
	var lenBuf [8]byte
	for _, name := range names {
		fc := p.Files[name]

		contentHash, err := contentHashOf(fc, resolver)
		if err != nil {
			return 0, err
		}

		h.Write([]byte(name))
		h.Write([]byte{0x00})
		binary.LittleEndian.PutUint64(lenBuf[:], contentHash)
		h.Write(lenBuf[:])
		h.Write([]byte{0x00})
	}

	return h.Sum64(), nil
}

// contentHashOf returns the 64-bit hash identifying a file's bytes: the
// blobstore-style hash for Text/Binary content, or the stored hash for a
// HashRef (re-validated against the resolver so a stale reference fails
// fast rather than silently fingerprinting to an absent blob).
func contentHashOf(fc project.FileContent, resolver Resolver) (uint64, error) {
	switch fc.Kind {
	case project.KindHashRef:
		if resolver == nil {
			return 0, project.Wrap(project.ErrUnresolvedBlob, "no resolver available for hash ref")
		}
		if _, ok := resolver.Get(fc.Hash); !ok {
			return 0, project.Wrap(project.ErrUnresolvedBlob, "hash %x not found in session blob store", fc.Hash)
		}
		return fc.Hash, nil
	default:
		return xxhash.Sum64(fc.Bytes), nil
	}
}

// Preamble computes the PreambleHash of a root file's bytes: the hash of
// everything from position 0 up to and including DocumentBeginMarker. Two
// roots sharing that exact byte prefix hash identically regardless of what
// follows, per spec.
func Preamble(rootBytes []byte) (uint64, bool) {
	idx := bytes.Index(rootBytes, []byte(DocumentBeginMarker))
	if idx < 0 {
		return 0, false
	}
	end := idx + len(DocumentBeginMarker)
	return xxhash.Sum64(rootBytes[:end]), true
}

func sortedNames(p *project.Project) []string {
	names := make([]string, 0, len(p.Files))
	for name := range p.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ensure blobstore.Store satisfies Resolver without an import cycle at
// compile time; blobstore does not import fingerprint.
var _ Resolver = (*blobstore.Store)(nil)
