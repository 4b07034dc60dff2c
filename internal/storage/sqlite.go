package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/martinsuchenak/bulbs/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStorage implements Storage with a SQLite backend.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens (creating if needed) the inventory database
// under dataDir.
func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "bulbs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ss := &SQLiteStorage{db: db, path: dbPath}
	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return ss, nil
}

func (ss *SQLiteStorage) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	_, err = ss.db.Exec(string(schema))
	return err
}

// Close closes the database.
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// ListDevices returns every inventory entry ordered by address.
func (ss *SQLiteStorage) ListDevices() ([]model.Device, error) {
	rows, err := ss.db.Query(`
		SELECT host, port, name, power, brightness, color, health, state_at, last_seen
		FROM devices ORDER BY host, port`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetDevice returns the inventory entry for addr.
func (ss *SQLiteStorage) GetDevice(addr model.Address) (*model.Device, error) {
	row := ss.db.QueryRow(`
		SELECT host, port, name, power, brightness, color, health, state_at, last_seen
		FROM devices WHERE host = ? AND port = ?`, addr.Host, addr.Port)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveDevice inserts or replaces the entry for device.Address.
func (ss *SQLiteStorage) SaveDevice(device *model.Device) error {
	if device.Address.IsZero() {
		return fmt.Errorf("device has no address")
	}
	port := device.Address.Port
	if port == 0 {
		port = model.DefaultPort
	}

	var stateAt, lastSeen any
	if !device.State.UpdatedAt.IsZero() {
		stateAt = device.State.UpdatedAt.UTC()
	}
	if !device.LastSeen.IsZero() {
		lastSeen = device.LastSeen.UTC()
	}

	health := device.Health
	if health == "" {
		health = model.HealthUnknown
	}

	_, err := ss.db.Exec(`
		INSERT INTO devices (host, port, name, power, brightness, color, health, state_at, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(host, port) DO UPDATE SET
			name = excluded.name,
			power = excluded.power,
			brightness = excluded.brightness,
			color = excluded.color,
			health = excluded.health,
			state_at = excluded.state_at,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		device.Address.Host, port, device.Name,
		boolToInt(device.State.Power), device.State.Brightness,
		device.State.Color.String(), string(health),
		stateAt, lastSeen, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving device %s: %w", device.Address, err)
	}
	return nil
}

// DeleteDevice removes the entry for addr.
func (ss *SQLiteStorage) DeleteDevice(addr model.Address) error {
	port := addr.Port
	if port == 0 {
		port = model.DefaultPort
	}
	res, err := ss.db.Exec(`DELETE FROM devices WHERE host = ? AND port = ?`, addr.Host, port)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", addr, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (model.Device, error) {
	var (
		d        model.Device
		power    int
		color    string
		health   string
		stateAt  sql.NullTime
		lastSeen sql.NullTime
	)
	err := row.Scan(&d.Address.Host, &d.Address.Port, &d.Name,
		&power, &d.State.Brightness, &color, &health, &stateAt, &lastSeen)
	if err != nil {
		return model.Device{}, err
	}

	d.State.Power = power != 0
	if color != "" {
		if c, err := model.ParseRGB(color); err == nil {
			d.State.Color = c
		}
	}
	d.Health = model.Health(health)
	if stateAt.Valid {
		d.State.UpdatedAt = stateAt.Time
	}
	if lastSeen.Valid {
		d.LastSeen = lastSeen.Time
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
