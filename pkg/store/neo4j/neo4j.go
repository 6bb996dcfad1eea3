// Package neo4j keeps entities and relationships in a Neo4j database.
//
// Entities are (:Entity) nodes, documents that appear as relationship
// endpoints are (:Document) nodes and every relationship is a [:RELATED]
// edge whose "type" property holds the relationship type. Evidence and
// metadata are stored as JSON strings.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/store"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v4/neo4j"
)

// GraphStorage implements store.GraphStore on Neo4j.
type GraphStorage struct {
	driver   neo4jdriver.Driver
	database string
	log      logger.ComponentLogger
}

var _ store.GraphStore = (*GraphStorage)(nil)

type NewGraphStorageParams struct {
	URI      string
	User     string
	Password string
	// Database defaults to the server's default database.
	Database string
}

func NewGraphStorage(params NewGraphStorageParams) (*GraphStorage, error) {
	auth := neo4jdriver.BasicAuth(params.User, params.Password, "")
	driver, err := neo4jdriver.NewDriver(params.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &GraphStorage{
		driver:   driver,
		database: params.Database,
		log:      logger.Component("Store"),
	}, nil
}

var schemaStatements = []string{
	`CREATE CONSTRAINT entity_id IF NOT EXISTS ON (e:Entity) ASSERT e.id IS UNIQUE`,
	`CREATE CONSTRAINT document_id IF NOT EXISTS ON (d:Document) ASSERT d.id IS UNIQUE`,
	`CREATE INDEX entity_span IF NOT EXISTS FOR (e:Entity) ON (e.document_id, e.type, e.start_pos, e.end_pos)`,
	`CREATE INDEX related_id IF NOT EXISTS FOR ()-[r:RELATED]-() ON (r.id)`,
}

// Init verifies connectivity and creates constraints and indexes.
func (s *GraphStorage) Init(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(); err != nil {
		return fmt.Errorf("failed to reach neo4j: %w", err)
	}
	session := s.session(neo4jdriver.AccessModeWrite)
	defer session.Close()
	for _, stmt := range schemaStatements {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := session.Run(stmt, nil)
		if err == nil {
			_, err = res.Consume()
		}
		if err != nil {
			return fmt.Errorf("failed to apply neo4j schema: %w", err)
		}
	}
	s.log.Info("Neo4j schema ready")
	return nil
}

func (s *GraphStorage) Close() error {
	return s.driver.Close()
}

func (s *GraphStorage) session(mode neo4jdriver.AccessMode) neo4jdriver.Session {
	return s.driver.NewSession(neo4jdriver.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// write runs fn in a write transaction.
func (s *GraphStorage) write(ctx context.Context, fn func(tx neo4jdriver.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session := s.session(neo4jdriver.AccessModeWrite)
	defer session.Close()
	_, err := session.WriteTransaction(func(tx neo4jdriver.Transaction) (any, error) {
		return nil, fn(tx)
	}, txTimeout(ctx))
	return err
}

// read runs fn in a read transaction.
func (s *GraphStorage) read(ctx context.Context, fn func(tx neo4jdriver.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session := s.session(neo4jdriver.AccessModeRead)
	defer session.Close()
	_, err := session.ReadTransaction(func(tx neo4jdriver.Transaction) (any, error) {
		return nil, fn(tx)
	}, txTimeout(ctx))
	return err
}

// txTimeout carries the context deadline over to the transaction, the v4
// driver takes no context.
func txTimeout(ctx context.Context) func(*neo4jdriver.TransactionConfig) {
	return func(cfg *neo4jdriver.TransactionConfig) {
		if deadline, ok := ctx.Deadline(); ok {
			cfg.Timeout = max(time.Until(deadline), time.Millisecond)
		}
	}
}

func collect(tx neo4jdriver.Transaction, cypher string, params map[string]any) ([]*neo4jdriver.Record, error) {
	res, err := tx.Run(cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Collect()
}

func exec(tx neo4jdriver.Transaction, cypher string, params map[string]any) (neo4jdriver.ResultSummary, error) {
	res, err := tx.Run(cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Consume()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// label maps an endpoint kind to a node label.
func label(kind common.NodeKind) string {
	if kind == common.NodeDocument {
		return "Document"
	}
	return "Entity"
}
