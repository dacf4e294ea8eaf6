package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// CodeTableStore implements domain.CodeTableStore using PostgreSQL.
type CodeTableStore struct {
	pool *pgxpool.Pool
}

// NewCodeTableStore creates a new CodeTableStore.
func NewCodeTableStore(pool *pgxpool.Pool) *CodeTableStore {
	return &CodeTableStore{pool: pool}
}

// LoadCodeTable reads the DMS make and model id tables. Names are
// uppercased; models without a make are the standalone table.
func (s *CodeTableStore) LoadCodeTable(ctx context.Context) (domain.CodeTable, error) {
	ct := domain.CodeTable{
		Makes:        map[string]string{},
		ModelsByMake: map[string]map[string]string{},
		Models:       map[string]string{},
	}

	rows, err := s.pool.Query(ctx, `SELECT id, name FROM dms_makes`)
	if err != nil {
		return domain.CodeTable{}, fmt.Errorf("postgres: load dms makes: %w", err)
	}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return domain.CodeTable{}, fmt.Errorf("postgres: scan dms make: %w", err)
		}
		ct.Makes[id] = strings.ToUpper(name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.CodeTable{}, fmt.Errorf("postgres: dms make rows: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT id, make_name, name FROM dms_models`)
	if err != nil {
		return domain.CodeTable{}, fmt.Errorf("postgres: load dms models: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, vehicleMake, name string
		if err := rows.Scan(&id, &vehicleMake, &name); err != nil {
			return domain.CodeTable{}, fmt.Errorf("postgres: scan dms model: %w", err)
		}
		name = strings.ToUpper(name)
		if vehicleMake == "" {
			ct.Models[id] = name
			continue
		}
		vehicleMake = strings.ToUpper(vehicleMake)
		if ct.ModelsByMake[vehicleMake] == nil {
			ct.ModelsByMake[vehicleMake] = map[string]string{}
		}
		ct.ModelsByMake[vehicleMake][id] = name
	}
	if err := rows.Err(); err != nil {
		return domain.CodeTable{}, fmt.Errorf("postgres: dms model rows: %w", err)
	}
	return ct, nil
}

var _ domain.CodeTableStore = (*CodeTableStore)(nil)
