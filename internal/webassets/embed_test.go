package webassets

import (
	"io/fs"
	"testing"
	"testing/fstest"
)

func TestFallbackFS(t *testing.T) {
	fsys := FallbackFS()
	for _, name := range []string{"maintenance.html", "404.html"} {
		b, err := fs.ReadFile(fsys, name)
		if err != nil || len(b) == 0 {
			t.Errorf("%s: %v (len %d)", name, err, len(b))
		}
	}
}

func TestSeedSiteFS(t *testing.T) {
	fsys, ok := SeedSiteFS()
	if !ok {
		t.Fatal("seed site missing index.html")
	}
	for _, name := range []string{
		"index.html",
		"work/index.html",
		"services/index.html",
		"stack/index.html",
		"contact/index.html",
		"404.html",
		"assets/site.css",
	} {
		if _, err := fs.Stat(fsys, name); err != nil {
			t.Errorf("seed %s: %v", name, err)
		}
	}
}

func TestMissingPages(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":      {Data: []byte("home")},
		"work/index.html": {Data: []byte("work")},
		"contact":         {Mode: fs.ModeDir},
	}
	got := MissingPages(fsys, []string{"index.html", "work/index.html", "contact", "stack/index.html"})
	want := []string{"contact", "stack/index.html"}
	if len(got) != len(want) {
		t.Fatalf("MissingPages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MissingPages = %v, want %v", got, want)
		}
	}
}
