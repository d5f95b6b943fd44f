package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"orgnotify/internal/model"
)

// DirectoryRepository reads the organization directory's account projection.
// The engine never writes to account_affiliations.
type DirectoryRepository struct {
	db *pgxpool.Pool
}

func NewDirectoryRepository(db *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) ActiveAccountIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT account_id FROM account_affiliations WHERE active`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active accounts: %w", err)
	}
	defer rows.Close()

	return scanAccountIDs(rows)
}

func (r *DirectoryRepository) Affiliations(ctx context.Context, accountIDs []int64) (map[int64]model.AccountAffiliation, error) {
	out := make(map[int64]model.AccountAffiliation, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT account_id, active, province_id, region_id, community_id
		FROM account_affiliations
		WHERE account_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query affiliations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.AccountAffiliation
		if err := rows.Scan(&a.AccountID, &a.Active, &a.ProvinceID, &a.RegionID, &a.CommunityID); err != nil {
			return nil, fmt.Errorf("failed to scan affiliation: %w", err)
		}
		out[a.AccountID] = a
	}
	return out, rows.Err()
}

// ActiveAccountsByAffiliation returns active accounts whose province, region
// or community is in targetIDs. One call covers all targets of a rule kind.
func (r *DirectoryRepository) ActiveAccountsByAffiliation(ctx context.Context, kind string, targetIDs []int64) ([]int64, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}

	var column string
	switch kind {
	case model.RuleKindProvince:
		column = "province_id"
	case model.RuleKindRegion:
		column = "region_id"
	case model.RuleKindCommunity:
		column = "community_id"
	default:
		return nil, fmt.Errorf("unsupported affiliation kind: %s", kind)
	}

	query := fmt.Sprintf(`
		SELECT account_id
		FROM account_affiliations
		WHERE active AND %s = ANY($1)
	`, column)

	rows, err := r.db.Query(ctx, query, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts by %s: %w", column, err)
	}
	defer rows.Close()

	return scanAccountIDs(rows)
}

type idRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAccountIDs(rows idRows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
