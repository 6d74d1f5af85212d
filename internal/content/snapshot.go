package content

import (
	"io/fs"
	"time"
)

type Source string

const (
	SourceUnknown Source = "unknown"
	SourceSeed    Source = "seed"
	SourceS3      Source = "s3"
)

// Meta describes where a snapshot came from.
type Meta struct {
	Version    string    `json:"version,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
	Source     Source    `json:"source,omitempty"`
	Signed     bool      `json:"signed,omitempty"`
}

// Snapshot is an immutable set of site files. Never modify FS after the
// snapshot is handed to a Manager.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	LoadedAt time.Time
}

// SeedSnapshot wraps the pages compiled into the binary. It is served until
// a bundle is loaded, or for good when content updates are disabled.
func SeedSnapshot(fsys fs.FS, version string) Snapshot {
	return Snapshot{
		FS: fsys,
		Meta: Meta{
			Version: version,
			Source:  SourceSeed,
		},
	}
}
