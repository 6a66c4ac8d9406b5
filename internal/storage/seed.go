package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

// imageExtensions are tried in order when looking up a place picture.
var imageExtensions = []string{".png", ".jpg", ".jpeg"}

// Catalogue is the fixed list of demo places.
type Catalogue struct {
	Location string   `yaml:"location"`
	Category string   `yaml:"category"`
	Names    []string `yaml:"names"`
}

// DefaultCatalogue returns the embedded demo catalogue.
func DefaultCatalogue() (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(catalogueYAML, &c); err != nil {
		return Catalogue{}, fmt.Errorf("storage: parse catalogue: %w", err)
	}
	if len(c.Names) == 0 {
		return Catalogue{}, errors.New("storage: catalogue has no names")
	}
	return c, nil
}

// Seeder stores the demo catalogue.
type Seeder struct {
	repo      PlacesRepository
	images    fs.FS
	catalogue Catalogue
	log       zerolog.Logger
}

// NewSeeder creates a Seeder that reads pictures from images. A nil images
// filesystem makes every entry count as missing its picture.
func NewSeeder(repo PlacesRepository, images fs.FS, catalogue Catalogue, log zerolog.Logger) *Seeder {
	return &Seeder{repo: repo, images: images, catalogue: catalogue, log: log}
}

// SeedDefaults saves one place per catalogue name that has a picture and
// returns how many were stored. Entries without a picture are skipped. It
// appends on every call; running it twice stores two copies.
//
// The first failing Save aborts seeding.
func (s *Seeder) SeedDefaults(ctx context.Context) (int, error) {
	location := s.catalogue.Location
	category := s.catalogue.Category

	saved := 0
	for _, name := range s.catalogue.Names {
		image, ok := s.loadImage(name)
		if !ok {
			s.log.Debug().Str("name", name).Msg("no picture, skipping")
			continue
		}

		p := &Place{
			Name:     name,
			Address:  &location,
			Category: &category,
			Image:    image,
		}
		if err := s.repo.Save(ctx, p); err != nil {
			return saved, fmt.Errorf("storage: SeedDefaults: %q: %w", name, err)
		}
		saved++
	}

	s.log.Info().Int("saved", saved).Int("catalogue", len(s.catalogue.Names)).Msg("demo places seeded")
	return saved, nil
}

func (s *Seeder) loadImage(name string) ([]byte, bool) {
	if s.images == nil {
		return nil, false
	}
	for _, ext := range imageExtensions {
		b, err := fs.ReadFile(s.images, name+ext)
		if err == nil && len(b) > 0 {
			return b, true
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Err(err).Str("file", name+ext).Msg("reading picture")
		}
	}
	return nil, false
}
