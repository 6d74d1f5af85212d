package projects

import (
	"slices"
	"strings"
	"testing"
)

func mustLoad(t *testing.T) *Catalogue {
	t.Helper()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestLoad_EmbeddedCatalogue(t *testing.T) {
	c := mustLoad(t)

	want := []string{"ag1-dashboard", "echoscribe", "fortress", "portfolio-v3"}
	if got := c.Slugs(); !slices.Equal(got, want) {
		t.Fatalf("Slugs = %v, want %v", got, want)
	}
	for _, p := range c.All() {
		if p.Title == "" || p.Link == "" || len(p.Tech) == 0 || len(p.Outcomes) == 0 {
			t.Errorf("project %q is incomplete: %+v", p.Slug, p)
		}
		if !strings.HasPrefix(p.Link, "https://") {
			t.Errorf("project %q link %q is not https", p.Slug, p.Link)
		}
	}
}

func TestBySlug(t *testing.T) {
	c := mustLoad(t)

	p, ok := c.BySlug("fortress")
	if !ok {
		t.Fatal("fortress not found")
	}
	if p.Category != "Security" || p.ID != "003" {
		t.Fatalf("fortress = %+v", p)
	}
	if len(p.Metrics) != 3 || p.Metrics[1].Label != "Checks" {
		t.Fatalf("fortress metrics = %+v", p.Metrics)
	}

	if _, ok := c.BySlug("non-existent-slug"); ok {
		t.Fatal("unknown slug should not be found")
	}
}

func TestCategoriesAndFilter(t *testing.T) {
	c := mustLoad(t)

	if got := c.Categories(); !slices.Equal(got, []string{"Mobile", "AI / ML", "Security", "Web"}) {
		t.Fatalf("Categories = %v", got)
	}
	if got := c.InCategory("ai / ml"); len(got) != 1 || got[0].Slug != "echoscribe" {
		t.Fatalf("InCategory = %+v", got)
	}
	if got := c.InCategory("Hardware"); got == nil || len(got) != 0 {
		t.Fatalf("unknown category should give an empty, non-nil slice: %#v", got)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	c := mustLoad(t)
	all := c.All()
	all[0].Title = "changed"
	if p, _ := c.BySlug(all[0].Slug); p.Title == "changed" {
		t.Fatal("All must not expose internal storage")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"bad json", `{`, "decode catalogue"},
		{"missing slug", `[{"title":"x"}]`, "has no slug"},
		{"duplicate slug", `[{"slug":"a"},{"slug":"a"}]`, "duplicate slug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
