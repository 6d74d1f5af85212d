// Package projects serves the portfolio's project catalogue, embedded at
// build time from projects.json.
package projects

import (
	_ "embed"
	"encoding/json"
	"slices"
	"strings"

	"github.com/hatimhtm/portfolio-web/internal/xerrors"
)

//go:embed projects.json
var catalogueJSON []byte

type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Project struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	LongDescription string   `json:"longDescription"`
	Tech            []string `json:"tech"`
	Metrics         []Metric `json:"metrics"`
	Color           string   `json:"color"`
	TextColor       string   `json:"textColor"`
	Link            string   `json:"link"`
	Category        string   `json:"category"`
	Problem         string   `json:"problem"`
	Solution        string   `json:"solution"`
	Outcomes        []string `json:"outcomes"`
}

// Catalogue is an immutable, ordered set of projects.
type Catalogue struct {
	projects []Project
	bySlug   map[string]int
}

// Load parses the embedded catalogue.
func Load() (*Catalogue, error) {
	return Parse(catalogueJSON)
}

// Parse builds a catalogue from JSON. Slugs must be present and unique.
func Parse(data []byte) (*Catalogue, error) {
	var ps []Project
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, xerrors.Wrap(err, "projects: decode catalogue")
	}

	c := &Catalogue{projects: ps, bySlug: make(map[string]int, len(ps))}
	for i, p := range ps {
		if p.Slug == "" {
			return nil, xerrors.Newf("projects: entry %d (%q) has no slug", i, p.Title)
		}
		if _, dup := c.bySlug[p.Slug]; dup {
			return nil, xerrors.Newf("projects: duplicate slug %q", p.Slug)
		}
		c.bySlug[p.Slug] = i
	}
	return c, nil
}

// All returns every project in catalogue order. The slice is a copy.
func (c *Catalogue) All() []Project {
	return slices.Clone(c.projects)
}

func (c *Catalogue) BySlug(slug string) (Project, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Project{}, false
	}
	return c.projects[i], true
}

func (c *Catalogue) Slugs() []string {
	out := make([]string, len(c.projects))
	for i, p := range c.projects {
		out[i] = p.Slug
	}
	return out
}

// Categories lists the distinct categories in first-seen order.
func (c *Catalogue) Categories() []string {
	var out []string
	for _, p := range c.projects {
		if !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	return out
}

// InCategory filters by category, case-insensitively.
func (c *Catalogue) InCategory(category string) []Project {
	out := []Project{}
	for _, p := range c.projects {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out
}
