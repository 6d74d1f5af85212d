package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/hatimhtm/portfolio-web/internal/pathutil"
)

// resolvePath maps a URL path onto a file in fsys. Directory URLs without a
// trailing slash return redirectTo with the canonical form.
func resolvePath(urlPath string, fsys fs.FS) (file, redirectTo string, ok bool) {
	p := urlPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if pathutil.Unsafe(p) {
		return "", "", false
	}

	clean := path.Clean(p)
	if clean == "/" {
		return lookup(fsys, "index.html")
	}
	name := strings.TrimPrefix(clean, "/")

	if strings.HasSuffix(p, "/") {
		return lookup(fsys, name+"/index.html")
	}
	if path.Ext(name) != "" {
		return lookup(fsys, name)
	}
	if existsFile(fsys, name+"/index.html") {
		return "", clean + "/", true
	}
	return "", "", false
}

func lookup(fsys fs.FS, name string) (string, string, bool) {
	if existsFile(fsys, name) {
		return name, "", true
	}
	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if fsys == nil || name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
