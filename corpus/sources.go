package corpus

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obba100/redress/docext"
)

// SourceSpec is one entry in the YAML source list.
type SourceSpec struct {
	Name          string `yaml:"name"`
	Location      string `yaml:"location"`
	Format        string `yaml:"format"`         // html | pdf, detected from location when empty
	Tag           string `yaml:"tag"`            // core | update
	FetchInterval string `yaml:"fetch_interval"` // Go duration, e.g. "24h"
	Disabled      bool   `yaml:"disabled"`
}

type sourceList struct {
	Sources []SourceSpec `yaml:"sources"`
}

// LoadSourceList reads a YAML source list file.
func LoadSourceList(path string) ([]SourceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list sourceList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse source list: %w", err)
	}

	for i := range list.Sources {
		spec := &list.Sources[i]
		if spec.Name == "" {
			return nil, fmt.Errorf("source %d: missing name", i)
		}
		if spec.Location == "" {
			return nil, fmt.Errorf("source %q: missing location", spec.Name)
		}
		if spec.Format == "" {
			spec.Format = string(docext.DetectFormat(spec.Location))
		}
		if spec.Format != FormatHTML && spec.Format != FormatPDF {
			return nil, fmt.Errorf("source %q: unknown format %q", spec.Name, spec.Format)
		}
		if spec.Tag == "" {
			spec.Tag = TagCore
		}
		if spec.Tag != TagCore && spec.Tag != TagUpdate {
			return nil, fmt.Errorf("source %q: unknown tag %q", spec.Name, spec.Tag)
		}
	}
	return list.Sources, nil
}

// parseInterval converts a duration string to milliseconds. Empty means
// "use the default".
func parseInterval(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad fetch_interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bad fetch_interval %q: must be positive", s)
	}
	return d.Milliseconds(), nil
}

// SyncSources reconciles the registry with a source list: new locations are
// inserted, known locations updated in place. Sources absent from the list
// are left alone so manually-added entries survive a sync.
func (s *Service) SyncSources(ctx context.Context, specs []SourceSpec) (added, updated int, err error) {
	for _, spec := range specs {
		existing, err := s.registry.GetByLocation(ctx, spec.Location)
		if err != nil {
			return added, updated, fmt.Errorf("lookup %q: %w", spec.Location, err)
		}

		interval, err := parseInterval(spec.FetchInterval)
		if err != nil {
			return added, updated, fmt.Errorf("source %q: %w", spec.Name, err)
		}

		if existing == nil {
			src := &Source{
				Name:          spec.Name,
				Location:      spec.Location,
				Format:        spec.Format,
				Tag:           spec.Tag,
				FetchInterval: interval,
				Enabled:       !spec.Disabled,
			}
			if _, err := s.AddSource(ctx, src); err != nil {
				return added, updated, fmt.Errorf("add %q: %w", spec.Name, err)
			}
			added++
			continue
		}

		existing.Name = spec.Name
		existing.Format = spec.Format
		existing.Tag = spec.Tag
		existing.Enabled = !spec.Disabled
		if interval > 0 {
			existing.FetchInterval = interval
		}
		if err := s.registry.Update(ctx, existing); err != nil {
			return added, updated, fmt.Errorf("update %q: %w", spec.Name, err)
		}
		updated++
	}
	return added, updated, nil
}
