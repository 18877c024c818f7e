// Package graph mirrors the reference graph into Neo4j for relationship
// views. Postgres stays the source of truth; the mirror can be rebuilt by a
// full reindex at any time.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	Timeout     time.Duration
}

// Mirror writes each resource's outgoing references as
// (:Resource)-[:REFERENCES {path}]->(:Resource) relationships.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	logger   zerolog.Logger
}

func NewMirror(ctx context.Context, cfg Config, logger zerolog.Logger) (*Mirror, error) {
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	return &Mirror{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

func (m *Mirror) session(ctx context.Context) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.database,
	})
}

// EnsureSchema creates the uniqueness constraint resource nodes are merged on.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `CREATE CONSTRAINT fhir_resource_key IF NOT EXISTS
FOR (r:Resource) REQUIRE (r.resource_type, r.resource_id) IS UNIQUE`, nil)
	if err != nil {
		return fmt.Errorf("create resource constraint: %w", err)
	}
	_, err = res.Consume(ctx)
	return err
}

const clearOutgoing = `
MERGE (s:Resource {resource_type: $resource_type, resource_id: $resource_id})
SET s.synced_at = $synced_at
WITH s
OPTIONAL MATCH (s)-[r:REFERENCES]->()
DELETE r
`

const mergeEdges = `
UNWIND $rows AS e
MATCH (s:Resource {resource_type: $resource_type, resource_id: $resource_id})
MERGE (t:Resource {resource_type: e.target_type, resource_id: e.target_id})
MERGE (s)-[r:REFERENCES {path: e.path}]->(t)
SET r.url = e.url, r.synced_at = $synced_at
`

const deleteSource = `
MATCH (s:Resource {resource_type: $resource_type, resource_id: $resource_id})
OPTIONAL MATCH (s)-[r:REFERENCES]->()
DELETE r
WITH DISTINCT s
WHERE NOT ()-[:REFERENCES]->(s)
DELETE s
`

// SyncEdges replaces the outgoing references of one resource.
func (m *Mirror) SyncEdges(ctx context.Context, resourceType, resourceID string, edges []fhir.ReferenceEdge) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	params := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"synced_at":     time.Now().UTC().Format(time.RFC3339Nano),
	}
	rows := edgeRows(edges)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, clearOutgoing, params); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		withRows := make(map[string]any, len(params)+1)
		for k, v := range params {
			withRows[k] = v
		}
		withRows["rows"] = rows
		return nil, run(ctx, tx, mergeEdges, withRows)
	})
	if err != nil {
		return fmt.Errorf("mirror edges of %s/%s: %w", resourceType, resourceID, err)
	}
	m.logger.Debug().Str("resource_type", resourceType).Str("resource_id", resourceID).Int("edges", len(rows)).Msg("edges mirrored")
	return nil
}

// DeleteSource drops the outgoing references of a resource, and its node
// when nothing references it any more.
func (m *Mirror) DeleteSource(ctx context.Context, resourceType, resourceID string) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, run(ctx, tx, deleteSource, map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		})
	})
	if err != nil {
		return fmt.Errorf("delete mirrored %s/%s: %w", resourceType, resourceID, err)
	}
	return nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// edgeRows converts edges to UNWIND rows, one per (path, target).
func edgeRows(edges []fhir.ReferenceEdge) []map[string]any {
	type key struct{ path, typ, id string }
	seen := make(map[key]bool, len(edges))
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e.TargetResourceType == "" || e.TargetResourceID == "" {
			continue
		}
		k := key{e.SourcePath, e.TargetResourceType, e.TargetResourceID}
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, map[string]any{
			"path":        e.SourcePath,
			"target_type": e.TargetResourceType,
			"target_id":   e.TargetResourceID,
			"url":         e.TargetURL,
		})
	}
	return rows
}
