package lineage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SHA256File returns the hex digest of a file's contents.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Describe builds an Output entry for a file that already exists at path.
func Describe(format, path string, rows int) (Output, error) {
	sum, err := SHA256File(path)
	if err != nil {
		return Output{}, err
	}
	return Output{Format: format, Path: path, Rows: rows, SHA256: sum}, nil
}

// Mismatch is one artifact whose current contents differ from the manifest.
type Mismatch struct {
	Path   string
	Want   string
	Got    string
	Reason string
}

type VerifyResult struct {
	Manifest   Manifest
	Checked    int
	Mismatches []Mismatch
}

// OK reports whether every artifact matched.
func (v VerifyResult) OK() bool { return len(v.Mismatches) == 0 }

// Verify reads the latest manifest and re-hashes every artifact it lists.
func Verify(ctx context.Context, r Reader) (VerifyResult, error) {
	m, err := r.ReadLatest(ctx)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("read manifest: %w", err)
	}
	res := VerifyResult{Manifest: m}
	for _, o := range append(append([]Output(nil), m.Outputs...), m.MetricsFiles...) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		got, err := SHA256File(o.Path)
		if err != nil {
			res.Mismatches = append(res.Mismatches, Mismatch{Path: o.Path, Want: o.SHA256, Reason: err.Error()})
			continue
		}
		if got != o.SHA256 {
			res.Mismatches = append(res.Mismatches, Mismatch{Path: o.Path, Want: o.SHA256, Got: got, Reason: "checksum differs"})
		}
	}
	return res, nil
}
