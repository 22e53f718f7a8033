package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/lightstage/internal/scene"
)

// MariaPresetRepo реализует PresetRepo для MariaDB/MySQL.
// Использует таблицу lightstage_presets.
type MariaPresetRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMariaPresetRepo создает репозиторий и таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения (user:pass@tcp(host:port)/dbname?parseTime=true)
func NewMariaPresetRepo(dsn string) (*MariaPresetRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPresetRepo{db: db, now: time.Now}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

func (r *MariaPresetRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS lightstage_presets (
			name       VARCHAR(64)  PRIMARY KEY,
			layers     INT          NOT NULL,
			preset     MEDIUMTEXT   NOT NULL,
			updated_at DATETIME(3)  NOT NULL
		) ENGINE=InnoDB
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы lightstage_presets: %w", err)
	}
	return nil
}

// Save использует INSERT ... ON DUPLICATE KEY UPDATE для перезаписи.
func (r *MariaPresetRepo) Save(ctx context.Context, name string, s *scene.Scene) error {
	rec, err := newRecord(name, s, r.now())
	if err != nil {
		return err
	}
	query := `
		INSERT INTO lightstage_presets (name, layers, preset, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			layers = VALUES(layers),
			preset = VALUES(preset),
			updated_at = VALUES(updated_at)
	`
	if _, err := r.db.ExecContext(ctx, query, rec.Name, rec.Layers, string(rec.Preset), rec.UpdatedAt); err != nil {
		return fmt.Errorf("ошибка сохранения пресета %s: %w", name, err)
	}
	return nil
}

func (r *MariaPresetRepo) Load(ctx context.Context, name string) (*scene.Scene, error) {
	var preset string
	err := r.db.QueryRowContext(ctx, `SELECT preset FROM lightstage_presets WHERE name = ?`, name).Scan(&preset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки пресета %s: %w", name, err)
	}
	return record{Name: name, Preset: json.RawMessage(preset)}.scene()
}

func (r *MariaPresetRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lightstage_presets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("ошибка удаления пресета %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MariaPresetRepo) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, layers, updated_at FROM lightstage_presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка пресетов: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Layers, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close закрывает соединение с базой данных.
func (r *MariaPresetRepo) Close() error {
	return r.db.Close()
}
