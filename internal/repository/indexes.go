package repository

import (
	"context"
	"fmt"

	"github.com/go-kivik/kivik/v4"
)

// EnsureIndexes creates the Mango indexes the scope listings query on.
// CouchDB treats re-creating an identical index as a no-op.
func EnsureIndexes(ctx context.Context, client *kivik.Client, dbName string) error {
	db := client.DB(dbName)

	indexes := map[string][]string{
		"by-type-project": {"type", "project_id"},
		"by-type-parent":  {"type", "parent_id"},
	}

	for name, fields := range indexes {
		index := map[string]interface{}{"fields": fields}
		if err := db.CreateIndex(ctx, "agenda-indexes", name, index); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	return nil
}
