package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *sql
var embedMigrations embed.FS

func open(pgurl string) (*sql.DB, error) {
	migrationDB, err := sql.Open("pgx", pgurl)
	if err != nil {
		return nil, fmt.Errorf("opening db for migrations: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		migrationDB.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	return migrationDB, nil
}

// Migrate applies every pending migration.
func Migrate(pgurl string) error {
	migrationDB, err := open(pgurl)
	if err != nil {
		return err
	}
	defer migrationDB.Close()

	if err := goose.Up(migrationDB, "."); err != nil {
		return fmt.Errorf("running up migrations: %w", err)
	}
	return nil
}

// Version returns the schema version currently applied.
func Version(pgurl string) (int64, error) {
	migrationDB, err := open(pgurl)
	if err != nil {
		return 0, err
	}
	defer migrationDB.Close()

	version, err := goose.GetDBVersion(migrationDB)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
