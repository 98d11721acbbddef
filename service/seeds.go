package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/models"

	"gopkg.in/yaml.v3"
)

// SeedFile is the curated alias and synonym list
//
//	aliases:
//	  - alias: 民法典
//	    law: 中华人民共和国民法典
//	    type: common_shortname
//	synonyms:
//	  - term: 欠钱
//	    canonical: 借款
type SeedFile struct {
	Aliases  []SeedAlias   `yaml:"aliases"`
	Synonyms []SeedSynonym `yaml:"synonyms"`
}

// SeedAlias maps a name to a law title. Confidence defaults to the curated
// level.
type SeedAlias struct {
	Alias      string  `yaml:"alias"`
	Law        string  `yaml:"law"`
	Type       string  `yaml:"type"`
	Confidence float64 `yaml:"confidence"`
}

// SeedSynonym maps a colloquial term to its canonical concept
type SeedSynonym struct {
	Term      string `yaml:"term"`
	Canonical string `yaml:"canonical"`
}

// SeedReport counts what applying a seed file did
type SeedReport struct {
	Aliases  int      `json:"aliases"`
	Synonyms int      `json:"synonyms"`
	Skipped  []string `json:"skipped"`
}

// ParseSeeds decodes a YAML seed file
func ParseSeeds(r io.Reader) (*SeedFile, error) {
	var seeds SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seeds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: seed file: %v", models.ErrInvalidInput, err)
	}
	return &seeds, nil
}

// ApplySeeds writes curated aliases and synonyms. Entries naming an unknown
// law or losing to a higher-confidence mapping are skipped and listed.
func (s *IngestService) ApplySeeds(ctx context.Context, seeds *SeedFile) (*SeedReport, error) {
	report := &SeedReport{Skipped: []string{}}

	for _, sa := range seeds.Aliases {
		aliasType, err := models.ParseAliasType(sa.Type)
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("alias %q: %v", sa.Alias, err))
			continue
		}
		res, err := s.resolver.Resolve(ctx, sa.Law)
		if err != nil {
			if errors.Is(err, models.ErrTimeout) {
				return nil, err
			}
			report.Skipped = append(report.Skipped, fmt.Sprintf("alias %q: law %q: %v", sa.Alias, sa.Law, err))
			continue
		}
		confidence := sa.Confidence
		if confidence == 0 {
			confidence = models.CuratedConfidence
		}

		err = s.pool.Do(ctx, func(ctx context.Context) error {
			_, err := s.resolver.AddAlias(ctx, models.Alias{
				Alias:      sa.Alias,
				LawID:      res.Best.LawID,
				Type:       aliasType,
				Confidence: confidence,
			}, true)
			return err
		})
		switch {
		case errors.Is(err, models.ErrValidationConflict), errors.Is(err, models.ErrInvalidInput):
			report.Skipped = append(report.Skipped, fmt.Sprintf("alias %q: %v", sa.Alias, err))
		case err != nil:
			return nil, err
		default:
			report.Aliases++
		}
	}

	for _, syn := range seeds.Synonyms {
		err := s.pool.Do(ctx, func(ctx context.Context) error {
			_, err := s.resolver.AddSynonym(ctx, syn.Term, syn.Canonical)
			return err
		})
		switch {
		case errors.Is(err, models.ErrInvalidInput):
			report.Skipped = append(report.Skipped, fmt.Sprintf("synonym %q: %v", syn.Term, err))
		case err != nil:
			return nil, err
		default:
			report.Synonyms++
		}
	}

	s.cache.Invalidate(cache.CorpusTag)
	s.log.Info().
		Int("aliases", report.Aliases).
		Int("synonyms", report.Synonyms).
		Int("skipped", len(report.Skipped)).
		Msg("seeds applied")
	return report, nil
}
