package coach

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/FightTheStroke/MirrorSmoker-sub002/assets"
)

// Category groups coaching messages by the risk band they address.
type Category string

const (
	CategoryMotivation    Category = "motivation"
	CategoryEncouragement Category = "encouragement"
	CategoryGuidance      Category = "guidance"
	CategorySupport       Category = "support"
)

// Message length bounds, in runes.
const (
	MinMessageLen = 10
	MaxMessageLen = 280
)

var ErrEmptyCategory = errors.New("catalogue category has no messages")

// Catalogue holds message templates per category.
type Catalogue struct {
	Motivation    []string `yaml:"motivation"`
	Encouragement []string `yaml:"encouragement"`
	Guidance      []string `yaml:"guidance"`
	Support       []string `yaml:"support"`
}

// ParseCatalogue decodes a YAML catalogue and validates it.
func ParseCatalogue(raw []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultCatalogue loads the catalogue embedded in the binary.
func DefaultCatalogue() (*Catalogue, error) {
	raw, err := assets.Messages()
	if err != nil {
		return nil, fmt.Errorf("read embedded catalogue: %w", err)
	}
	return ParseCatalogue(raw)
}

// Validate checks every category is populated and every message fits the length bounds.
func (c *Catalogue) Validate() error {
	for _, cat := range []Category{CategoryMotivation, CategoryEncouragement, CategoryGuidance, CategorySupport} {
		msgs := c.For(cat)
		if len(msgs) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyCategory, cat)
		}
		for i, m := range msgs {
			if n := utf8.RuneCountInString(m); n < MinMessageLen || n > MaxMessageLen {
				return fmt.Errorf("%s[%d]: length %d outside %d..%d", cat, i, n, MinMessageLen, MaxMessageLen)
			}
		}
	}
	return nil
}

// For returns the messages of one category.
func (c *Catalogue) For(cat Category) []string {
	switch cat {
	case CategoryMotivation:
		return c.Motivation
	case CategoryEncouragement:
		return c.Encouragement
	case CategoryGuidance:
		return c.Guidance
	case CategorySupport:
		return c.Support
	default:
		return nil
	}
}
