package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirindex/internal/platform/db"
)

// pageSize bounds how many rows one iteration round trip loads. Pages are
// read with keyset pagination so no cursor stays open while callers write.
const pageSize = 500

// PGSource reads resources from the fhir_resource table.
type PGSource struct {
	pool     *pgxpool.Pool
	pageSize int
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool, pageSize: pageSize}
}

func (s *PGSource) GetResource(ctx context.Context, resourceType, id string) ([]byte, error) {
	var raw []byte
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT content FROM fhir_resource WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", resourceType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", resourceType, id, err)
	}
	return raw, nil
}

func (s *PGSource) Iterate(ctx context.Context, fn func(Record) error) error {
	var lastType, lastID string
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := db.Conn(ctx, s.pool).Query(ctx, `
			SELECT resource_type, resource_id, content FROM fhir_resource
			WHERE (resource_type, resource_id) > ($1, $2)
			ORDER BY resource_type, resource_id
			LIMIT $3`, lastType, lastID, s.pageSize)
		if err != nil {
			return fmt.Errorf("iterate fhir_resource: %w", err)
		}
		page, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
			var r Record
			err := row.Scan(&r.ResourceType, &r.StorageID, &r.Raw)
			return r, err
		})
		if err != nil {
			return fmt.Errorf("scan fhir_resource: %w", err)
		}
		for _, r := range page {
			r.Origin = r.ResourceType + "/" + r.StorageID
			if err := fn(r); err != nil {
				return err
			}
		}
		if len(page) < s.pageSize {
			return nil
		}
		last := page[len(page)-1]
		lastType, lastID = last.ResourceType, last.StorageID
	}
}

func (s *PGSource) IterateIdentities(ctx context.Context, fn func(Identity) error) error {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT resource_type, resource_id, logical_id FROM fhir_resource`)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, scanIdentity)
	if err != nil {
		return fmt.Errorf("scan identities: %w", err)
	}
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGSource) FindTyped(ctx context.Context, resourceType, logicalID string) (*Identity, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT resource_type, resource_id, logical_id FROM fhir_resource
		 WHERE resource_type = $1 AND logical_id = $2 LIMIT 1`, resourceType, logicalID)
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", resourceType, logicalID, err)
	}
	ids, err := pgx.CollectRows(rows, scanIdentity)
	if err != nil {
		return nil, fmt.Errorf("scan %s/%s: %w", resourceType, logicalID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return &ids[0], nil
}

func (s *PGSource) FindByLogicalID(ctx context.Context, logicalID string) ([]Identity, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT resource_type, resource_id, logical_id FROM fhir_resource
		 WHERE logical_id = $1 LIMIT 2`, logicalID)
	if err != nil {
		return nil, fmt.Errorf("find id %s: %w", logicalID, err)
	}
	ids, err := pgx.CollectRows(rows, scanIdentity)
	if err != nil {
		return nil, fmt.Errorf("scan id %s: %w", logicalID, err)
	}
	return ids, nil
}

func scanIdentity(row pgx.CollectableRow) (Identity, error) {
	var id Identity
	err := row.Scan(&id.ResourceType, &id.StorageID, &id.LogicalID)
	return id, err
}
