package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
)

// Digest is a SHA-256 content or combination digest.
type Digest [sha256.Size]byte

// String returns the hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes a hex digest as produced by Digest.String.
func ParseDigest(s string) (Digest, bool) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(d) {
		return Digest{}, false
	}
	copy(d[:], raw)
	return d, true
}

// HashFile computes the content digest of the file at path.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, err
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// childEntry pairs a child name with its digest for combination hashing.
type childEntry struct {
	name   string
	isDir  bool
	digest Digest
}

// combineDigests computes a directory digest from its children. Entries are
// sorted by name before hashing so the result is independent of filesystem
// enumeration order, and each entry is framed with its name and a type byte
// so that renames and file/directory swaps change the digest.
func combineDigests(children []childEntry) Digest {
	sorted := make([]childEntry, len(children))
	copy(sorted, children)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	h := sha256.New()
	for _, c := range sorted {
		_, _ = h.Write([]byte(c.name))
		if c.isDir {
			_, _ = h.Write([]byte{0x00, 'd'})
		} else {
			_, _ = h.Write([]byte{0x00, 'f'})
		}
		_, _ = h.Write(c.digest[:])
		_, _ = h.Write([]byte{0x01})
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
