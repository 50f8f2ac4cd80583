package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// Screenshot is a row of gowitness' results table
type Screenshot struct {
	URL          string `json:"url"`
	ResponseCode int    `json:"response_code"`
	Title        string `json:"title"`
	Filename     string `json:"filename"`
}

// Screenshots lists the screenshots recorded in the gowitness database.
// A database which does not exist yet holds no screenshots.
func Screenshots(ctx context.Context, dbPath string) ([]Screenshot, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Screenshot{}, nil
		}
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.QueryContext(ctx,
		`SELECT url, response_code, title, filename FROM results ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := []Screenshot{}
	for rows.Next() {
		var s Screenshot
		var title, filename sql.NullString
		var code sql.NullInt64
		if err := rows.Scan(&s.URL, &code, &title, &filename); err != nil {
			return nil, fmt.Errorf("scanning sql row failed: %w", err)
		}
		s.ResponseCode = int(code.Int64)
		s.Title = title.String
		s.Filename = filename.String
		ret = append(ret, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sql rows failed: %w", err)
	}
	return ret, nil
}
