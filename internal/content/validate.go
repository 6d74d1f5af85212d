package content

import (
	"io/fs"

	"github.com/hatimhtm/portfolio-web/internal/xerrors"
)

// ValidationOptions controls ValidateSnapshot.
type ValidationOptions struct {
	// MinFiles rejects bundles with fewer files. 0 disables the check.
	MinFiles int

	// RequirePages lists pages that must exist and be non-empty.
	RequirePages []string
}

// DefaultValidationOptions requires the pages the site navigation links to.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MinFiles:     5,
		RequirePages: []string{"index.html", "work/index.html", "contact/index.html"},
	}
}

// ValidateSnapshot sanity checks a bundle before the Watcher swaps it in.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("validate: snapshot has nil filesystem")
	}

	for _, p := range opts.RequirePages {
		if err := checkPage(snap.FS, p); err != nil {
			return err
		}
	}

	if opts.MinFiles > 0 {
		count, err := countFiles(snap.FS)
		if err != nil {
			return xerrors.Wrap(err, "validate: counting files")
		}
		if count < opts.MinFiles {
			return xerrors.Newf("validate: bundle has %d files, minimum is %d", count, opts.MinFiles)
		}
	}
	return nil
}

func checkPage(fsys fs.FS, name string) error {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return xerrors.Wrapf(err, "validate: %s not found", name)
	}
	if info.IsDir() {
		return xerrors.Newf("validate: %s is a directory", name)
	}
	if info.Size() == 0 {
		return xerrors.Newf("validate: %s is empty", name)
	}
	return nil
}

func countFiles(fsys fs.FS) (int, error) {
	count := 0
	err := fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}
