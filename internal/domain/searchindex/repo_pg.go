package searchindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirindex/internal/platform/db"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/pkg/pagination"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

var paramCols = []string{
	"resource_type", "resource_id", "param_name", "param_type", "source_path",
	"value_token_system", "value_token_code", "value_string",
	"value_date_start", "value_date_end",
	"value_reference", "value_reference_canonical", "value_reference_id",
	"value_quantity_value", "value_quantity_unit", "value_quantity_system",
	"value_uri", "value_number",
}

const paramSelectCols = `resource_type, resource_id, param_name, param_type, source_path,
	value_token_system, value_token_code, value_string,
	value_date_start, value_date_end,
	value_reference, value_reference_canonical, value_reference_id,
	value_quantity_value, value_quantity_unit, value_quantity_system,
	value_uri, value_number`

const edgeCols = `source_resource_type, source_resource_id, source_path,
	target_resource_type, target_resource_id, target_url`

// derivedTables hold per-resource rows keyed by the resource's type and id.
var derivedTables = []struct{ table, typeCol, idCol string }{
	{"search_param", "resource_type", "resource_id"},
	{"compartment_membership", "resource_type", "resource_id"},
	{"reference_edge", "source_resource_type", "source_resource_id"},
	{"dangling_reference", "source_resource_type", "source_resource_id"},
}

func deleteDerived(ctx context.Context, tx pgx.Tx, resourceType, resourceID string) error {
	for _, t := range derivedTables {
		sql := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, t.table, t.typeCol, t.idCol)
		if _, err := tx.Exec(ctx, sql, resourceType, resourceID); err != nil {
			return fmt.Errorf("clear %s: %w", t.table, err)
		}
	}
	return nil
}

func (r *repoPG) ReplaceResource(ctx context.Context, rec *IndexRecords) error {
	res := rec.Resource
	return db.InTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteDerived(ctx, tx, res.ResourceType, res.ResourceID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO indexed_resource (resource_type, resource_id, logical_id, content_hash, registry_version,
				param_count, type_param_count, dangling_count, indexed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (resource_type, resource_id) DO UPDATE SET
				logical_id = EXCLUDED.logical_id,
				content_hash = EXCLUDED.content_hash,
				registry_version = EXCLUDED.registry_version,
				param_count = EXCLUDED.param_count,
				type_param_count = EXCLUDED.type_param_count,
				dangling_count = EXCLUDED.dangling_count,
				indexed_at = EXCLUDED.indexed_at`,
			res.ResourceType, res.ResourceID, res.LogicalID, res.ContentHash, res.RegistryVersion,
			res.ParamCount, res.TypeParamCount, res.DanglingCount, res.IndexedAt,
		); err != nil {
			return fmt.Errorf("upsert indexed_resource: %w", err)
		}

		if len(rec.Params) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"search_param"}, paramCols,
				pgx.CopyFromSlice(len(rec.Params), func(i int) ([]interface{}, error) {
					p := rec.Params[i]
					return []interface{}{
						p.ResourceType, p.ResourceID, p.ParamName, string(p.ParamType), p.SourcePath,
						p.TokenSystem, p.TokenCode, p.String,
						p.DateStart, p.DateEnd,
						p.Reference, p.ReferenceCanonical, p.ReferenceID,
						p.QuantityValue, p.QuantityUnit, p.QuantitySystem,
						p.URI, p.Number,
					}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy search_param: %w", err)
			}
		}

		batch := &pgx.Batch{}
		for _, m := range rec.Memberships {
			batch.Queue(`INSERT INTO compartment_membership (compartment_type, compartment_id, resource_type, resource_id)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				m.CompartmentType, m.CompartmentID, m.ResourceType, m.ResourceID)
		}
		for _, e := range rec.Edges {
			batch.Queue(`INSERT INTO reference_edge (`+edgeCols+`)
				VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
				e.SourceResourceType, e.SourceResourceID, e.SourcePath, e.TargetResourceType, e.TargetResourceID, e.TargetURL)
		}
		for _, d := range rec.Dangling {
			batch.Queue(`INSERT INTO dangling_reference (source_resource_type, source_resource_id, source_path, target_url)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				d.SourceResourceType, d.SourceResourceID, d.SourcePath, d.TargetURL)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert links: %w", err)
		}
		return nil
	})
}

func (r *repoPG) DeleteResource(ctx context.Context, resourceType, resourceID string) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := deleteDerived(ctx, tx, resourceType, resourceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM indexed_resource WHERE resource_type = $1 AND resource_id = $2`,
			resourceType, resourceID); err != nil {
			return fmt.Errorf("delete indexed_resource: %w", err)
		}
		return nil
	})
}

func (r *repoPG) GetIndexedResource(ctx context.Context, resourceType, resourceID string) (*IndexedResource, error) {
	var res IndexedResource
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT resource_type, resource_id, logical_id, content_hash, registry_version,
			param_count, type_param_count, dangling_count, indexed_at
		FROM indexed_resource WHERE resource_type = $1 AND resource_id = $2`, resourceType, resourceID).
		Scan(&res.ResourceType, &res.ResourceID, &res.LogicalID, &res.ContentHash, &res.RegistryVersion,
			&res.ParamCount, &res.TypeParamCount, &res.DanglingCount, &res.IndexedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *repoPG) ParamsFor(ctx context.Context, resourceType, resourceID string) ([]fhir.SearchParam, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paramSelectCols+` FROM search_param
		WHERE resource_type = $1 AND resource_id = $2 ORDER BY param_name, id`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fhir.SearchParam, error) {
		var p fhir.SearchParam
		var pt string
		err := row.Scan(&p.ResourceType, &p.ResourceID, &p.ParamName, &pt, &p.SourcePath,
			&p.TokenSystem, &p.TokenCode, &p.String,
			&p.DateStart, &p.DateEnd,
			&p.Reference, &p.ReferenceCanonical, &p.ReferenceID,
			&p.QuantityValue, &p.QuantityUnit, &p.QuantitySystem,
			&p.URI, &p.Number)
		p.ParamType = fhir.SearchParamType(pt)
		return p, err
	})
}

func (r *repoPG) SearchResourceIDs(ctx context.Context, resourceType string, queries []fhir.ParamQuery, page pagination.Params) ([]string, int, error) {
	page = page.Normalized()
	q := fhir.NewSearchQuery(resourceType)
	for _, pq := range queries {
		q.AddParamQuery(pq)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("select matches: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, 0, fmt.Errorf("scan matches: %w", err)
	}
	return ids, total, nil
}

func (r *repoPG) CompartmentMembers(ctx context.Context, compartmentType, compartmentID, resourceType string) ([]fhir.CompartmentMembership, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT compartment_type, compartment_id, resource_type, resource_id
		FROM compartment_membership
		WHERE compartment_type = $1 AND compartment_id = $2 AND ($3 = '' OR resource_type = $3)
		ORDER BY resource_type, resource_id`, compartmentType, compartmentID, resourceType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fhir.CompartmentMembership, error) {
		var m fhir.CompartmentMembership
		err := row.Scan(&m.CompartmentType, &m.CompartmentID, &m.ResourceType, &m.ResourceID)
		return m, err
	})
}

func (r *repoPG) OutgoingEdges(ctx context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+edgeCols+` FROM reference_edge
		WHERE source_resource_type = $1 AND source_resource_id = $2
		ORDER BY source_path, target_resource_type, target_resource_id`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEdge)
}

func (r *repoPG) IncomingEdges(ctx context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+edgeCols+` FROM reference_edge
		WHERE target_resource_type = $1 AND target_resource_id = $2
		ORDER BY source_resource_type, source_resource_id, source_path`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanEdge)
}

func scanEdge(row pgx.CollectableRow) (fhir.ReferenceEdge, error) {
	var e fhir.ReferenceEdge
	err := row.Scan(&e.SourceResourceType, &e.SourceResourceID, &e.SourcePath,
		&e.TargetResourceType, &e.TargetResourceID, &e.TargetURL)
	return e, err
}

func (r *repoPG) Stats(ctx context.Context, registryVersion string, supportedTypes []string) (*IndexStats, error) {
	var s IndexStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM indexed_resource),
			(SELECT COUNT(*) FROM search_param),
			(SELECT COALESCE(SUM(type_param_count), 0) FROM indexed_resource),
			(SELECT COUNT(*) FROM compartment_membership),
			(SELECT COUNT(*) FROM reference_edge),
			(SELECT COUNT(*) FROM dangling_reference),
			(SELECT COUNT(*) FROM indexed_resource WHERE type_param_count = 0 AND resource_type = ANY($2)),
			(SELECT COUNT(*) FROM indexed_resource WHERE registry_version <> $1)`, registryVersion, supportedTypes).
		Scan(&s.Resources, &s.Params, &s.TypeParams, &s.Memberships, &s.Edges, &s.Dangling, &s.ZeroTypeParamResources, &s.StaleResources)
	if err != nil {
		return nil, fmt.Errorf("index stats: %w", err)
	}
	return &s, nil
}
