package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagebatch/internal/db/migrations"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction, in filename order.
func Migrate(ctx context.Context, db infra.SQLDB, logger zerolog.Logger) error {
	return migrate(ctx, db, embeddedFiles(), logger)
}

func migrate(ctx context.Context, db infra.SQLDB, files fs.FS, logger zerolog.Logger) error {
	if _, err := db.Exec(ctx, sqlinline.QMigrationsEnsureTable); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	names, err := listMigrationFiles(files)
	if err != nil {
		return err
	}
	for _, name := range names {
		var applied bool
		if err := db.QueryRow(ctx, sqlinline.QMigrationApplied, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		body, err := fs.ReadFile(files, name)
		if err != nil {
			return err
		}
		err = db.InTx(ctx, func(tx infra.SQLExecutor) error {
			if _, err := tx.Exec(ctx, markMigration(name, string(body))); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, sqlinline.QMigrationRecord, name); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		logger.Info().Str("migration", name).Msg("migration applied")
	}
	return nil
}

// markMigration prefixes a migration body with a marker derived from its
// filename so the SQL runner can log it like any inline statement.
func markMigration(name, body string) string {
	marker := uuid.NewSHA1(uuid.NameSpaceURL, []byte("imagebatch/migrations/"+name))
	return "--sql " + marker.String() + "\n" + body
}

func listMigrationFiles(migFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

func embeddedFiles() fs.FS {
	return migrations.Files
}
