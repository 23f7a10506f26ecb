// Package record reads and writes the RECORD manifest of a wheel.
//
// Each row is "path,algorithm=urlsafe-b64-digest,size". The RECORD file lists
// itself with empty hash and size fields.
package record

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"
)

// DefaultAlgorithm is used for every digest this package computes.
const DefaultAlgorithm = "sha256"

var (
	// ErrWeakHash is returned for md5 and sha1 digests, which wheels must not use.
	ErrWeakHash = errors.New("weak hash algorithm")
	// ErrUnsupportedHash is returned for algorithms outside the sha2 family.
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")
	// ErrMismatch is returned when content does not match a recorded digest or size.
	ErrMismatch = errors.New("hash mismatch")
)

// Entry is a single RECORD row.
type Entry struct {
	Path string
	Hash string // e.g., "sha256=abc..."; empty for RECORD itself
	Size string // decimal byte count; empty for RECORD itself
}

// Parse reads every row of a RECORD file. Blank lines are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var entries []Entry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing RECORD: %w", err)
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}

		e := Entry{Path: row[0]}
		if len(row) > 1 {
			e.Hash = row[1]
		}
		if len(row) > 2 {
			e.Size = row[2]
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Write writes entries in RECORD format with "\n" line endings.
func Write(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		if err := cw.Write([]string{e.Path, e.Hash, e.Size}); err != nil {
			return fmt.Errorf("writing RECORD row %s: %w", e.Path, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Format renders entries into a RECORD file body.
func Format(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest returns the RECORD hash field for data using DefaultAlgorithm.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return DefaultAlgorithm + "=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewEntry builds the RECORD row for a file with the given content.
func NewEntry(path string, data []byte) Entry {
	return Entry{
		Path: path,
		Hash: Digest(data),
		Size: strconv.Itoa(len(data)),
	}
}

// Verify checks data against the entry's recorded hash and size. Empty fields
// are not checked.
func (e Entry) Verify(data []byte) error {
	if e.Hash != "" {
		algorithm, expected, ok := strings.Cut(e.Hash, "=")
		if !ok {
			return fmt.Errorf("%s: malformed hash field %q", e.Path, e.Hash)
		}

		h, err := newHash(algorithm)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Path, err)
		}
		h.Write(data)
		actual := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
		if actual != strings.TrimRight(expected, "=") {
			return fmt.Errorf("%s: %w", e.Path, ErrMismatch)
		}
	}

	if e.Size != "" {
		size, err := strconv.Atoi(e.Size)
		if err != nil {
			return fmt.Errorf("%s: malformed size field %q", e.Path, e.Size)
		}
		if size != len(data) {
			return fmt.Errorf("%s: %w: size %d, recorded %d", e.Path, ErrMismatch, len(data), size)
		}
	}

	return nil
}

func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha256":
		return sha256.New(), nil
	case "sha224":
		return sha256.New224(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	case "md5", "sha1":
		return nil, fmt.Errorf("%w: %s", ErrWeakHash, algorithm)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, algorithm)
	}
}
