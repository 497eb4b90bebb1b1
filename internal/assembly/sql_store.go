package assembly

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/biggstd/pynome/internal/workdir"
)

const assemblyCacheSize = 1024

// SQLStore keeps the registry in Postgres. Single assembly lookups, which the
// index step performs once per job, are served from an LRU cache.
type SQLStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	cache *lru.Cache[string, Assembly]
}

// OpenSQL connects to Postgres through the pgx database/sql driver.
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("assembly: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("assembly: ping database: %w", err)
	}
	cache, err := lru.New[string, Assembly](assemblyCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLStore{db: db, cache: cache}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS assembly_entries (
  entry_key TEXT PRIMARY KEY,
  genus TEXT NOT NULL,
  species TEXT NOT NULL,
  intraspecific_name TEXT NOT NULL DEFAULT '',
  assembly_id TEXT NOT NULL,
  taxonomy_id TEXT NOT NULL DEFAULT '',
  mirror_type TEXT NOT NULL,
  mirror_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS assemblies (
  taxonomy_id TEXT NOT NULL,
  name TEXT NOT NULL,
  genus TEXT NOT NULL,
  species TEXT NOT NULL,
  intraspecific_name TEXT NOT NULL DEFAULT '',
  mirror_type TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  PRIMARY KEY (taxonomy_id, name)
);
CREATE INDEX IF NOT EXISTS idx_assemblies_species ON assemblies (lower(genus), lower(species));
`)
		if err != nil {
			s.schemaErr = fmt.Errorf("assembly: create schema: %w", err)
		}
	})
	return s.schemaErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

const upsertEntrySQL = `INSERT INTO assembly_entries
  (entry_key, genus, species, intraspecific_name, assembly_id, taxonomy_id, mirror_type, mirror_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (entry_key) DO UPDATE SET
  genus = EXCLUDED.genus,
  species = EXCLUDED.species,
  intraspecific_name = EXCLUDED.intraspecific_name,
  assembly_id = EXCLUDED.assembly_id,
  taxonomy_id = EXCLUDED.taxonomy_id,
  mirror_type = EXCLUDED.mirror_type,
  mirror_data = EXCLUDED.mirror_data,
  updated_at = NOW()`

// AddEntry implements Store.
func (s *SQLStore) AddEntry(ctx context.Context, entry Entry) error {
	return s.AddEntries(ctx, []Entry{entry})
}

// AddEntries implements Store. All entries are upserted in one transaction.
func (s *SQLStore) AddEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.AssemblyID) == "" {
			return fmt.Errorf("assembly: entry %q has no assembly id", entry.Key())
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("assembly: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsertEntrySQL)
	if err != nil {
		return fmt.Errorf("assembly: prepare entry upsert: %w", err)
	}
	defer stmt.Close()
	for _, entry := range entries {
		data, err := json.Marshal(entry.MirrorData)
		if err != nil {
			return fmt.Errorf("assembly: encode mirror data: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			entry.Key(), entry.Genus, entry.Species, entry.IntraspecificName,
			entry.AssemblyID, entry.TaxonomyID, entry.MirrorType, string(data))
		if err != nil {
			return fmt.Errorf("assembly: insert entry %s: %w", entry.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("assembly: commit entries: %w", err)
	}
	return nil
}

// Entries implements Store.
func (s *SQLStore) Entries(ctx context.Context, species string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT genus, species, intraspecific_name, assembly_id, taxonomy_id, mirror_type, mirror_data
FROM assembly_entries ORDER BY entry_key`)
	if err != nil {
		return nil, fmt.Errorf("assembly: list entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e   Entry
			raw []byte
		)
		if err := rows.Scan(&e.Genus, &e.Species, &e.IntraspecificName, &e.AssemblyID, &e.TaxonomyID, &e.MirrorType, &raw); err != nil {
			return nil, fmt.Errorf("assembly: scan entry: %w", err)
		}
		if err := json.Unmarshal(raw, &e.MirrorData); err != nil {
			return nil, fmt.Errorf("assembly: decode mirror data: %w", err)
		}
		if MatchSpecies(species, e.Genus, e.Species, e.IntraspecificName) {
			out = append(out, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assembly: list entries: %w", err)
	}
	sortEntries(out)
	return out, nil
}

// PutAssembly implements Store.
func (s *SQLStore) PutAssembly(ctx context.Context, a Assembly) error {
	if strings.TrimSpace(a.TaxonomyID) == "" || strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("assembly: taxonomy id and name are required")
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("assembly: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assemblies
  (taxonomy_id, name, genus, species, intraspecific_name, mirror_type, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (taxonomy_id, name) DO UPDATE SET
  genus = EXCLUDED.genus,
  species = EXCLUDED.species,
  intraspecific_name = EXCLUDED.intraspecific_name,
  mirror_type = EXCLUDED.mirror_type,
  metadata = EXCLUDED.metadata,
  updated_at = NOW()`,
		a.TaxonomyID, a.Name, a.Genus, a.Species, a.IntraspecificName, a.MirrorType, string(meta))
	if err != nil {
		return fmt.Errorf("assembly: upsert %s/%s: %w", a.TaxonomyID, a.Name, err)
	}
	s.cache.Remove(assemblyKey(a.TaxonomyID, a.Name))
	return nil
}

// Assembly implements Store.
func (s *SQLStore) Assembly(ctx context.Context, taxonomyID, name string) (Assembly, error) {
	key := assemblyKey(taxonomyID, name)
	if cached, ok := s.cache.Get(key); ok {
		cached.Metadata = cached.Metadata.Clone()
		return cached, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT taxonomy_id, name, genus, species, intraspecific_name, mirror_type, metadata
FROM assemblies WHERE taxonomy_id = $1 AND name = $2`, strings.TrimSpace(taxonomyID), strings.TrimSpace(name))
	a, err := scanAssembly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assembly{}, fmt.Errorf("%w: %s %s", ErrNotFound, taxonomyID, name)
	}
	if err != nil {
		return Assembly{}, err
	}
	s.cache.Add(key, a)
	return a, nil
}

// Assemblies implements Store.
func (s *SQLStore) Assemblies(ctx context.Context, species string) ([]Assembly, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT taxonomy_id, name, genus, species, intraspecific_name, mirror_type, metadata
FROM assemblies ORDER BY taxonomy_id, name`)
	if err != nil {
		return nil, fmt.Errorf("assembly: list assemblies: %w", err)
	}
	defer rows.Close()
	var out []Assembly
	for rows.Next() {
		a, err := scanAssembly(rows)
		if err != nil {
			return nil, err
		}
		if MatchSpecies(species, a.Genus, a.Species, a.IntraspecificName) {
			out = append(out, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assembly: list assemblies: %w", err)
	}
	return out, nil
}

func scanAssembly(row rowScanner) (Assembly, error) {
	var (
		a   Assembly
		raw []byte
	)
	if err := row.Scan(&a.TaxonomyID, &a.Name, &a.Genus, &a.Species, &a.IntraspecificName, &a.MirrorType, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assembly{}, err
		}
		return Assembly{}, fmt.Errorf("assembly: scan assembly: %w", err)
	}
	a.Metadata = workdir.Metadata{}
	if err := json.Unmarshal(raw, &a.Metadata); err != nil {
		return Assembly{}, fmt.Errorf("assembly: decode metadata: %w", err)
	}
	return a, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	s.cache.Purge()
	return s.db.Close()
}
