// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteSchema はSQLite用の現行スキーマ。
// PostgreSQLのマイグレーション000001〜000003を適用した結果と同じ形を表す。
//
//go:embed sqlite_schema.sql
var sqliteSchema string

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
// SQLiteのURLが渡された場合は現行スキーマを直接適用する。
func RunMigrations(databaseURL string) error {
	dialect, err := DialectOf(databaseURL)
	if err != nil {
		return err
	}

	if dialect == DialectSQLite {
		db, err := Open(databaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return EnsureSQLiteSchema(context.Background(), db)
	}

	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// EnsureSQLiteSchema はSQLiteデータベースに現行スキーマを作成する。
// CREATE ... IF NOT EXISTSのみで構成されるため、何度実行してもよい。
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}
