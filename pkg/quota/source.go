package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

type inMemSource struct {
	limits Limits
}

// NewInMemSource returns a Source serving a copy of limits.
func NewInMemSource(limits Limits) Source {
	return &inMemSource{limits: cloneLimits(limits)}
}

func (s *inMemSource) Load(context.Context) (Limits, error) {
	return cloneLimits(s.limits), nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a Source reading a file shaped as:
//
//	free:
//	  photo: 10
//	  ocr: 5
//	premium:
//	  photo: 300
//	  ocr: -1
func NewYAMLSource(path string) Source {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(context.Context) (Limits, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open limits file: %w", err)
	}
	defer f.Close()

	return ParseYAML(f)
}

// ParseYAML decodes a limit table from r.
func ParseYAML(r io.Reader) (Limits, error) {
	var raw map[string]map[string]int64
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Limits{}, nil
		}
		return nil, errors.Join(ErrInvalidLimits, err)
	}

	limits := make(Limits, len(raw))
	for plan, features := range raw {
		table := make(map[Feature]int64, len(features))
		for feature, limit := range features {
			table[Feature(feature)] = limit
		}
		limits[entitlement.Plan(plan)] = table
	}
	return limits, nil
}

func validateLimits(limits Limits) error {
	for plan, features := range limits {
		if !plan.Valid() {
			return fmt.Errorf("%w: unknown plan %q", ErrInvalidLimits, plan)
		}
		for feature, limit := range features {
			if feature == "" {
				return fmt.Errorf("%w: empty feature name in plan %q", ErrInvalidLimits, plan)
			}
			if limit < Unlimited {
				return fmt.Errorf("%w: plan %q feature %q has negative limit %d", ErrInvalidLimits, plan, feature, limit)
			}
		}
	}
	return nil
}

func cloneLimits(src Limits) Limits {
	dst := make(Limits, len(src))
	for plan, features := range src {
		dst[plan] = maps.Clone(features)
	}
	return dst
}
