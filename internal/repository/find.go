package repository

import (
	"context"

	"github.com/go-kivik/kivik/v4"
)

// findPageSize caps each _find request. CouchDB answers at most 25 documents
// when no limit is given, so every listing pages explicitly.
var findPageSize = 200

// findAll runs a Mango query page by page, following the bookmark until a
// short page comes back. Documents that fail to decode are skipped.
func findAll[T any](ctx context.Context, db *kivik.DB, op string, selector map[string]interface{}) ([]T, error) {
	var (
		out      []T
		bookmark string
	)

	for {
		query := map[string]interface{}{
			"selector": selector,
			"limit":    findPageSize,
		}
		if bookmark != "" {
			query["bookmark"] = bookmark
		}

		rows := db.Find(ctx, query)
		if err := rows.Err(); err != nil {
			return nil, wrap(op, err)
		}

		n := 0
		for rows.Next() {
			n++
			var doc T
			if err := rows.ScanDoc(&doc); err != nil {
				continue
			}
			out = append(out, doc)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, wrap(op, err)
		}

		meta, err := rows.Metadata()
		rows.Close()
		if err != nil {
			return nil, wrap(op, err)
		}

		if n < findPageSize || meta.Bookmark == "" || meta.Bookmark == bookmark {
			return out, nil
		}
		bookmark = meta.Bookmark
	}
}
