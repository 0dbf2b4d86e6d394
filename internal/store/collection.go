package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/archivist/internal/document"
)

// Insert adds doc to collection and returns the stored document.
// A UUIDv7 _id is assigned when the document has none. Inserting an _id that
// already exists in the collection, or a document that violates a UNIQUE
// index, returns ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, collection string, doc document.Document) (document.Document, error) {
	stored := doc.Clone()
	if stored == nil {
		stored = document.Document{}
	}
	if _, ok := stored[document.IDField]; !ok {
		stored[document.IDField] = uuid.Must(uuid.NewV7()).String()
	}

	docID, body, err := encode(stored)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, body)
		VALUES (?, ?, ?)
	`, collection, docID, body)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, classify(err))
	}

	return stored, nil
}

// FindOne returns the first document matching filter under opts.Sort.
// Returns ErrNotFound if nothing matches.
func (s *Store) FindOne(ctx context.Context, collection string, filter Filter, opts FindOptions) (document.Document, error) {
	opts.Limit = 1
	docs, err := s.Find(ctx, collection, filter, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Find returns all documents matching filter.
// Results are ordered by opts.Sort, then by insertion order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]document.Document, error) {
	where, params, err := compileFilter(collection, filter)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	order, err := compileOrder(opts.Sort)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	query := "SELECT body FROM documents WHERE " + where + order
	if opts.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []document.Document{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := document.Decode([]byte(body))
		if err != nil {
			return nil, err
		}
		if len(opts.Projection) > 0 {
			doc = doc.Project(opts.Projection)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// Update replaces every document matching filter with doc and returns the
// number of documents matched. doc must carry an _id.
//
// The match and the replacement happen in one statement, so a filter that
// includes a version field acts as a compare-and-swap.
func (s *Store) Update(ctx context.Context, collection string, filter Filter, doc document.Document) (int64, error) {
	if _, ok := doc[document.IDField]; !ok {
		return 0, fmt.Errorf("update %s: %w", collection, ErrMissingID)
	}
	docID, body, err := encode(doc)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	where, params, err := compileFilter(collection, filter)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}

	args := append([]any{docID, body}, params...)
	result, err := s.db.ExecContext(ctx, "UPDATE documents SET doc_id = ?, body = ? WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, classify(err))
	}
	matched, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: rows affected: %w", collection, err)
	}
	return matched, nil
}

// Remove deletes every document matching filter and returns how many were
// removed.
func (s *Store) Remove(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, params, err := compileFilter(collection, filter)
	if err != nil {
		return 0, fmt.Errorf("remove from %s: %w", collection, err)
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE "+where, params...)
	if err != nil {
		return 0, fmt.Errorf("remove from %s: %w", collection, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove from %s: rows affected: %w", collection, err)
	}
	return removed, nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, params, err := compileFilter(collection, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Collections lists the collections that currently hold documents.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT collection FROM documents
		ORDER BY collection COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// IndexKey is one component of an index definition.
type IndexKey = SortKey

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	// Name identifies the index within its collection. Defaults to the
	// field names joined by underscores.
	Name   string
	Unique bool
}

// CreateIndex creates an expression index over keys, scoped to collection.
// Creating an index whose name already exists is a no-op, so the call is
// safe to repeat.
func (s *Store) CreateIndex(ctx context.Context, collection string, keys []IndexKey, opts IndexOptions) error {
	if len(keys) == 0 {
		return fmt.Errorf("create index on %s: no keys", collection)
	}

	exprs := make([]string, 0, len(keys))
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		expr, err := fieldExpr(k.Field)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", collection, err)
		}
		if k.Desc {
			expr += " DESC"
		}
		exprs = append(exprs, expr)
		fields = append(fields, k.Field)
	}

	name := opts.Name
	if name == "" {
		name = strings.Join(fields, "_")
	}

	unique := ""
	if opts.Unique {
		unique = "UNIQUE "
	}

	// Index DDL cannot take bound parameters: the collection literal and the
	// index identifier are quoted instead.
	stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON documents(%s) WHERE collection = %s",
		unique,
		quoteIdent("idx_"+collection+"__"+name),
		strings.Join(exprs, ", "),
		quoteLiteral(collection),
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create index %s on %s: %w", name, collection, classify(err))
	}
	return nil
}

// encode returns the doc_id column value and canonical body of doc.
func encode(doc document.Document) (string, string, error) {
	id, err := document.MarshalCanonical(doc[document.IDField])
	if err != nil {
		return "", "", fmt.Errorf("encode _id: %w", err)
	}
	body, err := document.MarshalCanonical(doc)
	if err != nil {
		return "", "", fmt.Errorf("encode body: %w", err)
	}
	return string(id), string(body), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
