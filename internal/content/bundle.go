package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"
	"time"
)

const (
	// maxBundleSize caps the compressed bundle read from S3.
	maxBundleSize int64 = 50 << 20

	// maxSignatureSize caps the detached signature object.
	maxSignatureSize int64 = 16 << 10

	maxSingleFile   int64 = 10 << 20
	maxTotalExtract int64 = 100 << 20

	// manifestName is the optional bundle manifest at the archive root.
	manifestName = "bundle.json"
)

// readWithHash reads at most maxSize bytes from r, hashing as it goes.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, maxSize+1), h))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("content exceeds max size (limit %d bytes)", maxSize)
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// cleanArchivePath normalises a tar entry name. ok is false for entries that
// carry no file ("." or empty).
func cleanArchivePath(name string) (clean string, ok bool, err error) {
	clean = path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." || clean == "" {
		return "", false, nil
	}
	if path.IsAbs(clean) {
		return "", false, fmt.Errorf("absolute path in archive: %s", name)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return "", false, fmt.Errorf("path traversal in archive: %s", name)
	}
	if !fs.ValidPath(clean) {
		return "", false, fmt.Errorf("invalid path in archive: %s", name)
	}
	return clean, true, nil
}

// extractTarGzToMem extracts a .tar.gz into an in-memory filesystem. Only
// regular files and directories are accepted.
func extractTarGzToMem(data []byte) (fstest.MapFS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gr.Close()

	mfs := make(fstest.MapFS)
	tr := tar.NewReader(gr)
	var total int64

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		name, ok, err := cleanArchivePath(hdr.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return nil, fmt.Errorf("file %s exceeds max size (%d > %d)", name, hdr.Size, maxSingleFile)
			}
			b, err := io.ReadAll(io.LimitReader(tr, maxSingleFile+1))
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			if int64(len(b)) > maxSingleFile {
				return nil, fmt.Errorf("file %s exceeds max size after read", name)
			}
			total += int64(len(b))
			if total > maxTotalExtract {
				return nil, fmt.Errorf("total extracted size exceeds limit (max %d)", maxTotalExtract)
			}
			mfs[name] = &fstest.MapFile{
				Data:    b,
				Mode:    hdr.FileInfo().Mode().Perm(),
				ModTime: hdr.ModTime,
			}
		default:
			return nil, fmt.Errorf("unsupported entry in archive: %s (type=%d)", name, hdr.Typeflag)
		}
	}

	return mfs, nil
}

// manifest is the optional bundle.json written by the site build.
type manifest struct {
	Version string    `json:"version"`
	BuiltAt time.Time `json:"built_at"`
}

func readManifest(fsys fs.FS) (manifest, error) {
	var m manifest
	b, err := fs.ReadFile(fsys, manifestName)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	return m, nil
}
