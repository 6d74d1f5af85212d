// Package webassets embeds the pages compiled into the binary: the seed
// site served before any bundle is loaded, and the fallback pages used when
// nothing is.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback seed
var embedded embed.FS

// SeedPages are the top-level portfolio pages every seed build must carry.
var SeedPages = []string{
	"index.html",
	"work/index.html",
	"services/index.html",
	"stack/index.html",
	"contact/index.html",
}

// FallbackFS holds maintenance.html and 404.html.
func FallbackFS() fs.FS {
	return mustSub("fallback")
}

// SeedSiteFS returns the seed site, or false when any of SeedPages is
// missing so a broken build falls through to the maintenance page.
func SeedSiteFS() (fs.FS, bool) {
	seed := mustSub("seed")
	if missing := MissingPages(seed, SeedPages); len(missing) > 0 {
		return nil, false
	}
	return seed, true
}

// MissingPages lists the names in pages that are not regular files in fsys.
func MissingPages(fsys fs.FS, pages []string) []string {
	var missing []string
	for _, p := range pages {
		fi, err := fs.Stat(fsys, p)
		if err != nil || !fi.Mode().IsRegular() {
			missing = append(missing, p)
		}
	}
	return missing
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return sub
}
