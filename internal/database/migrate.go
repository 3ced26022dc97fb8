// Package database はデータベース接続とマイグレーション管理を提供する。
//
// マイグレーションは番号付き・前方のみ（up専用）のSQLファイルとして埋め込まれ、
// 適用済みバージョンは追記専用のschema_migrationsテーブル（version, applied_at）に
// 記録される。適用済みバージョンの再適用はno-op、順序違反はMigrationGap、
// 対象オブジェクトの二重作成はMigrationConflictとして報告される。
// 各マイグレーションは自身の記録行と同一トランザクションで適用されるため、
// 失敗時はストアが最後に成功したバージョンのまま残る。
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey はマイグレーション実行全体で保持するPostgreSQLアドバイザリロックのキー。
// 複数デプロイが同一ストアに対して同時にマイグレーションを適用するのを防ぐ。
const migrationLockKey = 0x68656467 // "hedg"

// Migration は埋め込みソースから読み込んだ1件のマイグレーションを表す。
type Migration struct {
	Version    uint
	Identifier string // ファイル名由来の識別子（例: create_items_and_comments）
	SQL        string
}

// Runner はマイグレーションの検出・順序付け・適用を行う。
// ファイルの列挙とバージョン順序付けはgolang-migrateのsourceドライバに委譲し、
// 適用と履歴記録はこのRunnerが行う。
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

// NewRunner は埋め込みマイグレーションを読み込んだRunnerを生成する。
func NewRunner(db *sql.DB) (*Runner, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	defer src.Close()

	return NewRunnerWithSource(db, src)
}

// NewRunnerWithSource は任意のsourceドライバからマイグレーションを読み込んだ
// Runnerを生成する。テストで別ソースを差し込む場合に使用する。
func NewRunnerWithSource(db *sql.DB, src source.Driver) (*Runner, error) {
	migrations, err := loadMigrations(src)
	if err != nil {
		return nil, err
	}
	if len(migrations) == 0 {
		return nil, fmt.Errorf("no migrations found in source")
	}

	return &Runner{db: db, migrations: migrations}, nil
}

// loadMigrations はsourceドライバからすべてのマイグレーションを昇順で読み込む。
func loadMigrations(src source.Driver) ([]Migration, error) {
	var migrations []Migration

	version, err := src.First()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read first migration version: %w", err)
	}

	for {
		body, identifier, err := src.ReadUp(version)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %d: %w", version, err)
		}
		sqlBytes, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %d body: %w", version, err)
		}

		migrations = append(migrations, Migration{
			Version:    version,
			Identifier: identifier,
			SQL:        string(sqlBytes),
		})

		next, err := src.Next(version)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				break
			}
			return nil, fmt.Errorf("failed to read next migration version: %w", err)
		}
		version = next
	}

	return migrations, nil
}

// Migrations は読み込み済みマイグレーションの一覧（昇順）を返す。
func (r *Runner) Migrations() []Migration {
	return r.migrations
}

// Up は未適用のマイグレーションをバージョン昇順ですべて適用し、
// 適用した件数を返す。適用済みバージョンはスキップされる（冪等リプレイ）。
// 実行全体でアドバイザリロックを保持し、同時実行を排除する。
func (r *Runner) Up(ctx context.Context) (int, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if err := acquireLock(ctx, conn); err != nil {
		return 0, err
	}
	defer releaseLock(conn)

	if err := ensureVersionTable(ctx, conn); err != nil {
		return 0, err
	}

	applied, maxApplied, err := appliedVersions(ctx, conn)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range r.migrations {
		if applied[m.Version] {
			continue
		}
		// 履歴に後続バージョンが記録されているのに先行バージョンが未適用の場合、
		// 履歴自体に穴があるため適用を拒否する。
		if maxApplied > m.Version {
			return count, &MigrationGapError{Version: maxApplied, Missing: m.Version}
		}
		if err := r.applyOne(ctx, conn, m, len(applied) == 0 && count == 0); err != nil {
			return count, err
		}
		applied[m.Version] = true
		maxApplied = m.Version
		count++
	}

	return count, nil
}

// Apply は指定バージョンのマイグレーションを1件だけ適用する。
// 適用済みの場合はno-op。先行する未適用バージョンが存在する場合は
// MigrationGapを返す。
func (r *Runner) Apply(ctx context.Context, version uint) error {
	var target *Migration
	for i := range r.migrations {
		if r.migrations[i].Version == version {
			target = &r.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("unknown migration version: %d", version)
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if err := acquireLock(ctx, conn); err != nil {
		return err
	}
	defer releaseLock(conn)

	if err := ensureVersionTable(ctx, conn); err != nil {
		return err
	}

	applied, _, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	if applied[version] {
		// 適用済みバージョンの再適用はno-op
		return nil
	}

	// 先行する既知のバージョンがすべて適用済みであること（順序不変条件）
	for _, m := range r.migrations {
		if m.Version >= version {
			break
		}
		if !applied[m.Version] {
			return &MigrationGapError{Version: version, Missing: m.Version}
		}
	}

	return r.applyOne(ctx, conn, *target, len(applied) == 0)
}

// Version は最後に適用されたバージョンを返す。
// 1件も適用されていない場合は2番目の戻り値がfalseになる。
func (r *Runner) Version(ctx context.Context) (uint, bool, error) {
	if err := ensureVersionTableDB(ctx, r.db); err != nil {
		return 0, false, err
	}

	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_migrations`,
	).Scan(&version)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return 0, false, nil
	}
	return uint(version.Int64), true, nil
}

// applyOne は1件のマイグレーションを記録行とともに同一トランザクションで適用する。
// freshStoreは履歴が空の状態での最初の適用であることを示し、
// その状態でのオブジェクト重複をAlreadyExists（履歴なしストアへの再作成）として
// 区別するために使用する。
func (r *Runner) applyOne(ctx context.Context, conn *sql.Conn, m Migration, freshStore bool) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		tx.Rollback()
		return mapSchemaError(m, freshStore, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
		int64(m.Version), time.Now().Unix(),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}

	slog.Info("migration applied",
		slog.Uint64("version", uint64(m.Version)),
		slog.String("identifier", m.Identifier),
	)
	return nil
}

// mapSchemaError はドライバエラーをマイグレーションのエラー種別に変換する。
// オブジェクト重複（duplicate table / column / object）は、履歴のない
// ストアに対する初回適用ではAlreadyExists、それ以外ではMigrationConflictになる。
func mapSchemaError(m Migration, freshStore bool, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P07", "42701", "42710": // duplicate_table, duplicate_column, duplicate_object
			object := pqErr.Table
			if object == "" {
				object = pqErr.Message
			}
			if freshStore {
				return &AlreadyExistsError{Version: m.Version, Object: object}
			}
			return &MigrationConflictError{Version: m.Version, Object: object}
		}
	}
	return fmt.Errorf("マイグレーション %d の適用に失敗しました: %w", m.Version, err)
}

// acquireLock はマイグレーション用アドバイザリロックを取得する。
func acquireLock(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return nil
}

// releaseLock はアドバイザリロックを解放する。
// シャットダウン経路でも解放できるよう、呼び出し元のctxには依存しない。
func releaseLock(conn *sql.Conn) {
	if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
		slog.Warn("failed to release migration lock", slog.String("error", err.Error()))
	}
}

// ensureVersionTable は適用履歴テーブルを作成する（存在する場合はno-op）。
// 履歴は追記専用で、行の更新・削除は行わない。
func ensureVersionTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    BIGINT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)`,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	return nil
}

// ensureVersionTableDB はensureVersionTableの*sql.DB版。
func ensureVersionTableDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    BIGINT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)`,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}
	return nil
}

// appliedVersions は適用済みバージョンの集合と最大値を返す。
func appliedVersions(ctx context.Context, conn *sql.Conn) (map[uint]bool, uint, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[uint]bool)
	var maxApplied uint
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, 0, fmt.Errorf("failed to scan applied version: %w", err)
		}
		applied[uint(v)] = true
		if uint(v) > maxApplied {
			maxApplied = uint(v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate applied versions: %w", err)
	}

	return applied, maxApplied, nil
}

// RunMigrations はすべての未適用マイグレーションを順番に適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	db, err := Open(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	runner, err := NewRunner(db)
	if err != nil {
		return err
	}

	count, err := runner.Up(context.Background())
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations complete", slog.Int("applied", count))
	return nil
}
