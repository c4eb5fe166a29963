package persona

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

const defaultSupabaseTable = "personas"

// SupabaseConfig points at a Supabase project holding the persona table.
type SupabaseConfig struct {
	URL    string
	APIKey string
	Table  string
}

// rowFetcher reads every row of a table into dest.
type rowFetcher interface {
	FetchAll(ctx context.Context, table string, dest any) error
}

type supabaseFetcher struct {
	client *supabase.Client
}

func (s supabaseFetcher) FetchAll(_ context.Context, table string, dest any) error {
	_, err := s.client.From(table).
		Select("*", "", false).
		ExecuteTo(dest)
	return err
}

// LoadSupabase reads the catalog from a Supabase table whose columns carry
// the same names as the CSV header.
func LoadSupabase(ctx context.Context, cfg SupabaseConfig) (*Catalog, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: supabase URL is required", ErrInvalidCatalog)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: supabase API key is required", ErrInvalidCatalog)
	}
	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create supabase client: %v", ErrInvalidCatalog, err)
	}
	return loadRows(ctx, supabaseFetcher{client: client}, cfg.Table)
}

func loadRows(ctx context.Context, f rowFetcher, table string) (*Catalog, error) {
	if table == "" {
		table = defaultSupabaseTable
	}
	var rows []Persona
	if err := f.FetchAll(ctx, table, &rows); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidCatalog, table, err)
	}
	return NewCatalog(rows)
}
