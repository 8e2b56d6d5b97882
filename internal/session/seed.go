package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sqlflow/internal/domain"
)

// Seed is a schema definition applied to every new session so users have
// tables to query right away.
type Seed struct {
	Tables []SeedTable `yaml:"tables"`
}

// SeedTable is one seeded table: its CREATE statement and initial rows.
type SeedTable struct {
	Name    string   `yaml:"name"`
	Create  string   `yaml:"create"`
	Inserts []string `yaml:"inserts"`
}

// LoadSeed reads a seed schema from a YAML file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read seed schema: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses a seed schema from YAML bytes.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed schema: %w", err)
	}
	for i, t := range seed.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("seed schema: table %d has no name", i)
		}
		if t.Create == "" {
			return nil, fmt.Errorf("seed schema: table %q has no create statement", t.Name)
		}
	}
	return &seed, nil
}

// Apply runs the seed's statements against a fresh session database.
func (s *Seed) Apply(ctx context.Context, db *sql.DB) error {
	for _, t := range s.Tables {
		if _, err := db.ExecContext(ctx, t.Create); err != nil {
			return domain.ErrExecution("seed table %q: %v", t.Name, err)
		}
		for _, ins := range t.Inserts {
			if _, err := db.ExecContext(ctx, ins); err != nil {
				return domain.ErrExecution("seed table %q: %v", t.Name, err)
			}
		}
	}
	return nil
}
