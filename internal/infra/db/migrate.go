package db

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// 埋め込んだSQLを最新まで当てる。当てるものが無ければ false
func MigrateUp(databaseURL string) (bool, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return false, errors.Wrap(err, "open embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return false, errors.Wrap(err, "init migrate")
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, errors.Wrap(err, "migrate up")
	}
	return true, nil
}
