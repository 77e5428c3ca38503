package checkpoints

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed migrations
var migrations embed.FS

// Migrations returns the embedded migration files for a database driver.
// Postgres files follow golang-migrate naming; SQLite carries a single
// idempotent schema applied by EnsureSchema.
func Migrations(driver string) (fs.FS, error) {
	return fs.Sub(migrations, "migrations/"+driver)
}

// EnsureSchema creates the SQLite tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	schema, err := migrations.ReadFile("migrations/sqlite/schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for stmt := range strings.SplitSeq(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
