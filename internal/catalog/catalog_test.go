package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "gradenorm/pkg/domain-errors"
)

type CatalogSuite struct {
	suite.Suite
	catalog *Catalog
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	s.catalog = Default()
}

func (s *CatalogSuite) TestDefaultCatalog() {
	s.Run("ships every built-in system", func() {
		for _, id := range []string{
			"ARG_1_10", "DEU_1_6_INVERTED", "ZA", "USA_GPA_0_4",
			"USA_LETTER_A_F", "GBR_ASTAR_F", "GBR_ALEVEL", "GBR_GCSE",
		} {
			_, ok := s.catalog.System(id)
			s.True(ok, "system %s missing", id)
		}
	})

	s.Run("bounds come from the record, not the id string", func() {
		za, ok := s.catalog.System("ZA")
		s.Require().True(ok)
		s.Equal(0.0, za.Min)
		s.Equal(100.0, za.Max)
	})

	s.Run("country mappings resolve", func() {
		s.Equal([]string{"GBR_ASTAR_F", "GBR_ALEVEL", "GBR_GCSE"}, s.catalog.SystemsForCountry("GBR"))
		s.Equal("ARG_1_10", s.catalog.DefaultSystemForCountry("ARG"))
		s.Empty(s.catalog.SystemsForCountry("XXX"))
	})
}

func (s *CatalogSuite) TestRequire() {
	s.Run("known system", func() {
		system, err := s.catalog.Require("ARG_1_10")
		s.NoError(err)
		s.Equal("ARG_1_10", system.ID)
	})

	s.Run("unknown system", func() {
		_, err := s.catalog.Require("FRA_0_20")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedSystem))
	})
}

func (s *CatalogSuite) TestValidation() {
	s.Run("numeric system with inverted bounds rejected", func() {
		_, err := New([]System{{ID: "BAD", Kind: KindNumeric, Min: 10, Max: 1}}, nil)
		s.Error(err)
	})

	s.Run("ordinal system needs at least two labels", func() {
		_, err := New([]System{{ID: "BAD", Kind: KindOrdinal, Labels: []string{"A"}}}, nil)
		s.Error(err)
	})

	s.Run("duplicate ids rejected", func() {
		systems := []System{
			{ID: "DUP", Kind: KindNumeric, Min: 0, Max: 10},
			{ID: "DUP", Kind: KindNumeric, Min: 0, Max: 20},
		}
		_, err := New(systems, nil)
		s.Error(err)
	})

	s.Run("country mapping must reference known systems", func() {
		systems := []System{{ID: "OK", Kind: KindNumeric, Min: 0, Max: 10}}
		_, err := New(systems, map[string][]string{"ARG": {"MISSING"}})
		s.Error(err)
	})
}

func (s *CatalogSuite) TestIsPassing() {
	za, ok := s.catalog.System("ZA")
	s.Require().True(ok)
	s.True(za.IsPassing(50, ""))
	s.False(za.IsPassing(49, ""))

	deu, ok := s.catalog.System("DEU_1_6_INVERTED")
	s.Require().True(ok)
	s.True(deu.IsPassing(2, ""), "lower is better on an inverted scale")
	s.False(deu.IsPassing(5, ""))

	letters, ok := s.catalog.System("USA_LETTER_A_F")
	s.Require().True(ok)
	s.True(letters.IsPassing(0, "D"))
	s.False(letters.IsPassing(0, "F"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	doc := `
systems:
  - id: FRA_0_20
    kind: numeric
    min: 0
    max: 20
    pass_threshold: 10
countries:
  FRA: [FRA_0_20]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog fixture: %v", err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	system, err := cat.Require("FRA_0_20")
	if err != nil {
		t.Fatalf("require loaded system: %v", err)
	}
	if system.Max != 20 {
		t.Fatalf("expected max 20, got %v", system.Max)
	}
	if got := cat.DefaultSystemForCountry("FRA"); got != "FRA_0_20" {
		t.Fatalf("expected FRA default FRA_0_20, got %q", got)
	}
}
