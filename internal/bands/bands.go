// Package bands loads the band table that maps a performance/cost tier to an
// ordered list of provider/model candidates. Order within a band defines
// failover preference: first entry is most preferred.
package bands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Candidate is a (provider, model) pair eligible to serve a request.
type Candidate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Band is a named tier with its ordered candidate list.
type Band struct {
	Name        string
	Description string
	Models      []Candidate
}

// aliases maps legacy band names onto the three canonical tiers.
var aliases = map[string]string{
	"simple":       "low",
	"low":          "low",
	"moderate":     "mid",
	"mid":          "mid",
	"medium":       "mid",
	"complex":      "high",
	"high":         "high",
	"long_context": "high",
}

// Normalize folds a caller-supplied band name onto {low, mid, high}.
// Unknown names are lowercased and passed through; Resolve maps those to the
// default band. Empty input stays empty.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[lower]; ok {
		return canonical
	}
	return lower
}

type bandFile struct {
	Version     string `json:"version"`
	DefaultBand string `json:"default_band"`
	Bands       map[string]struct {
		Description string `json:"description"`
		Models      []Candidate `json:"models"`
	} `json:"bands"`
}

// Registry is the immutable band table. Safe for concurrent use.
type Registry struct {
	version     string
	defaultBand string
	bands       map[string]Band
}

// Load reads and validates a bands JSON file. A file with no bands, a
// missing default band, or a band without candidates is rejected so the
// routing pipeline never sees an empty candidate list.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bands file: %w", err)
	}
	var f bandFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse bands file %s: %w", path, err)
	}
	if len(f.Bands) == 0 {
		return nil, fmt.Errorf("bands file %s declares no bands", path)
	}
	if f.DefaultBand == "" {
		f.DefaultBand = "mid"
	}

	r := &Registry{
		version:     f.Version,
		defaultBand: f.DefaultBand,
		bands:       make(map[string]Band, len(f.Bands)),
	}
	for name, cfg := range f.Bands {
		if len(cfg.Models) == 0 {
			return nil, fmt.Errorf("band %q has no models", name)
		}
		models := make([]Candidate, 0, len(cfg.Models))
		for _, m := range cfg.Models {
			models = append(models, Candidate{
				Provider: strings.ToLower(m.Provider),
				Model:    m.Model,
			})
		}
		r.bands[name] = Band{Name: name, Description: cfg.Description, Models: models}
	}
	if _, ok := r.bands[r.defaultBand]; !ok {
		return nil, fmt.Errorf("default band %q not declared in bands file", r.defaultBand)
	}
	return r, nil
}

// Band returns the named band, if declared.
func (r *Registry) Band(name string) (Band, bool) {
	b, ok := r.bands[name]
	return b, ok
}

// Default returns the default band.
func (r *Registry) Default() Band {
	return r.bands[r.defaultBand]
}

// Resolve returns the named band, falling back to the default for empty or
// unknown names.
func (r *Registry) Resolve(name string) Band {
	if b, ok := r.bands[Normalize(name)]; ok {
		return b
	}
	return r.Default()
}

// Names lists the declared band names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.bands))
	for name := range r.bands {
		names = append(names, name)
	}
	return names
}

// FindProvider scans all bands for a model id (case-insensitive) and returns
// the provider that serves it.
func (r *Registry) FindProvider(model string) (string, bool) {
	target := strings.ToLower(model)
	for _, band := range r.bands {
		for _, c := range band.Models {
			if strings.ToLower(c.Model) == target {
				return c.Provider, true
			}
		}
	}
	return "", false
}
