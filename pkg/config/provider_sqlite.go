package config

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (config_id, key)
);
CREATE TABLE IF NOT EXISTS chart_ranges (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	range_hours INTEGER NOT NULL,
	bucket_minutes INTEGER NOT NULL,
	unit TEXT,
	PRIMARY KEY (config_id, range_hours)
);
CREATE TABLE IF NOT EXISTS storage_configs (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	backend TEXT NOT NULL,
	path TEXT,
	connection_string TEXT,
	addr TEXT,
	password TEXT,
	db INTEGER,
	redis_key TEXT,
	ttl TEXT,
	PRIMARY KEY (config_id, backend)
);
CREATE TABLE IF NOT EXISTS controller_configs (
	config_id INTEGER NOT NULL REFERENCES configs(id),
	type TEXT NOT NULL,
	cert TEXT,
	key TEXT,
	port INTEGER,
	listen_addr TEXT,
	PRIMARY KEY (config_id, type)
);
`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens (and if needed initializes) a SQLite configuration database
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize SQLite schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	cfg := &ConfigData{}

	configID, err := s.configID()
	if err != nil {
		return nil, err
	}

	settings, err := s.loadSettings(configID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := applySettings(cfg, settings); err != nil {
		return nil, err
	}

	if cfg.Chart.Ranges, err = s.loadRanges(configID); err != nil {
		return nil, fmt.Errorf("failed to load chart ranges: %w", err)
	}
	if err := s.loadStorage(configID, &cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	if cfg.Controllers, err = s.loadControllers(configID); err != nil {
		return nil, fmt.Errorf("failed to load controllers: %w", err)
	}

	return finalize(cfg)
}

func (s *SQLiteProvider) configID() (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM configs WHERE name = 'default'`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no configuration stored in %s; import one with `fluidwatch config convert`", s.dbPath)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query configs: %w", err)
	}
	return id, nil
}

func (s *SQLiteProvider) loadSettings(configID int64) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings WHERE config_id = ?`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

func (s *SQLiteProvider) loadRanges(configID int64) ([]RangeData, error) {
	rows, err := s.db.Query(`SELECT range_hours, bucket_minutes, unit FROM chart_ranges WHERE config_id = ? ORDER BY range_hours`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []RangeData
	for rows.Next() {
		var r RangeData
		var unit sql.NullString
		if err := rows.Scan(&r.RangeHours, &r.BucketMinutes, &unit); err != nil {
			return nil, err
		}
		r.Unit = unit.String
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

func (s *SQLiteProvider) loadStorage(configID int64, storage *StorageData) error {
	rows, err := s.db.Query(`
		SELECT backend, path, connection_string, addr, password, db, redis_key, ttl
		FROM storage_configs WHERE config_id = ?`, configID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var backend string
		var path, connStr, addr, password, key, ttl sql.NullString
		var db sql.NullInt64
		if err := rows.Scan(&backend, &path, &connStr, &addr, &password, &db, &key, &ttl); err != nil {
			return err
		}

		switch backend {
		case "sqlite":
			storage.SQLite = &SQLiteData{Path: path.String}
		case "postgres":
			storage.Postgres = &PostgresData{ConnectionString: connStr.String}
		case "redis":
			storage.Redis = &RedisData{
				Addr:     addr.String,
				Password: password.String,
				DB:       int(db.Int64),
				Key:      key.String,
				TTL:      ttl.String,
			}
		default:
			return fmt.Errorf("unknown storage backend %q", backend)
		}
	}
	return rows.Err()
}

func (s *SQLiteProvider) loadControllers(configID int64) ([]ControllerData, error) {
	rows, err := s.db.Query(`SELECT type, cert, key, port, listen_addr FROM controller_configs WHERE config_id = ? ORDER BY type`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var controllers []ControllerData
	for rows.Next() {
		var ctrlType string
		var cert, key, listenAddr sql.NullString
		var port sql.NullInt64
		if err := rows.Scan(&ctrlType, &cert, &key, &port, &listenAddr); err != nil {
			return nil, err
		}

		ctrl := ControllerData{Type: ctrlType}
		switch ctrlType {
		case "rest":
			ctrl.RESTServer = &RESTServerData{Cert: cert.String, Key: key.String, Port: int(port.Int64), ListenAddr: listenAddr.String}
		case "grpc":
			ctrl.GRPC = &GRPCData{Cert: cert.String, Key: key.String, Port: int(port.Int64), ListenAddr: listenAddr.String}
		}
		controllers = append(controllers, ctrl)
	}
	return controllers, rows.Err()
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO configs (name, created_at, updated_at) VALUES ('default', datetime('now'), datetime('now'))
		ON CONFLICT(name) DO UPDATE SET updated_at = datetime('now')`); err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	var configID int64
	if err := tx.QueryRow(`SELECT id FROM configs WHERE name = 'default'`).Scan(&configID); err != nil {
		return fmt.Errorf("failed to read config id: %w", err)
	}

	for _, table := range []string{"settings", "chart_ranges", "storage_configs", "controller_configs"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE config_id = ?", configID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for k, v := range settingsOf(configData) {
		if _, err := tx.Exec(`INSERT INTO settings (config_id, key, value) VALUES (?, ?, ?)`, configID, k, v); err != nil {
			return fmt.Errorf("failed to insert setting %s: %w", k, err)
		}
	}

	for _, r := range configData.Chart.Ranges {
		if _, err := tx.Exec(`INSERT INTO chart_ranges (config_id, range_hours, bucket_minutes, unit) VALUES (?, ?, ?, ?)`,
			configID, r.RangeHours, r.BucketMinutes, r.Unit); err != nil {
			return fmt.Errorf("failed to insert range %dh: %w", r.RangeHours, err)
		}
	}

	insertStorage := `INSERT INTO storage_configs (config_id, backend, path, connection_string, addr, password, db, redis_key, ttl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if st := configData.Storage.SQLite; st != nil {
		if _, err := tx.Exec(insertStorage, configID, "sqlite", st.Path, nil, nil, nil, nil, nil, nil); err != nil {
			return fmt.Errorf("failed to insert sqlite storage: %w", err)
		}
	}
	if st := configData.Storage.Postgres; st != nil {
		if _, err := tx.Exec(insertStorage, configID, "postgres", nil, st.ConnectionString, nil, nil, nil, nil, nil); err != nil {
			return fmt.Errorf("failed to insert postgres storage: %w", err)
		}
	}
	if st := configData.Storage.Redis; st != nil {
		if _, err := tx.Exec(insertStorage, configID, "redis", nil, nil, st.Addr, st.Password, st.DB, st.Key, st.TTL); err != nil {
			return fmt.Errorf("failed to insert redis storage: %w", err)
		}
	}

	for _, ctrl := range configData.Controllers {
		var cert, key, listenAddr string
		var port int
		switch {
		case ctrl.RESTServer != nil:
			cert, key, port, listenAddr = ctrl.RESTServer.Cert, ctrl.RESTServer.Key, ctrl.RESTServer.Port, ctrl.RESTServer.ListenAddr
		case ctrl.GRPC != nil:
			cert, key, port, listenAddr = ctrl.GRPC.Cert, ctrl.GRPC.Key, ctrl.GRPC.Port, ctrl.GRPC.ListenAddr
		}
		if _, err := tx.Exec(`INSERT INTO controller_configs (config_id, type, cert, key, port, listen_addr) VALUES (?, ?, ?, ?, ?, ?)`,
			configID, ctrl.Type, cert, key, port, listenAddr); err != nil {
			return fmt.Errorf("failed to insert controller %s: %w", ctrl.Type, err)
		}
	}

	return tx.Commit()
}

func settingsOf(c *ConfigData) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	settings := map[string]string{
		"device.name":            c.Device.Name,
		"device.base_url":        c.Device.BaseURL,
		"device.timeout":         c.Device.Timeout,
		"chart.interval_minutes": strconv.Itoa(c.Chart.IntervalMinutes),
		"chart.horizon_hours":    strconv.Itoa(c.Chart.HorizonHours),
		"chart.location":         c.Chart.Location,
		"thresholds.good":        f(c.Thresholds.Good),
		"thresholds.adequate":    f(c.Thresholds.Adequate),
		"session.weight":         f(c.Session.Weight),
		"refresh_interval":       c.RefreshInterval,
	}
	for k, v := range settings {
		if v == "" || v == "0" {
			delete(settings, k)
		}
	}
	return settings
}

func applySettings(c *ConfigData, settings map[string]string) error {
	var err error
	intValue := func(key string, dst *int) {
		if v, ok := settings[key]; ok && err == nil {
			if *dst, err = strconv.Atoi(v); err != nil {
				err = fmt.Errorf("setting %s: %w", key, err)
			}
		}
	}
	floatValue := func(key string, dst *float64) {
		if v, ok := settings[key]; ok && err == nil {
			if *dst, err = strconv.ParseFloat(v, 64); err != nil {
				err = fmt.Errorf("setting %s: %w", key, err)
			}
		}
	}

	c.Device.Name = settings["device.name"]
	c.Device.BaseURL = settings["device.base_url"]
	c.Device.Timeout = settings["device.timeout"]
	c.Chart.Location = settings["chart.location"]
	c.RefreshInterval = settings["refresh_interval"]
	intValue("chart.interval_minutes", &c.Chart.IntervalMinutes)
	intValue("chart.horizon_hours", &c.Chart.HorizonHours)
	floatValue("thresholds.good", &c.Thresholds.Good)
	floatValue("thresholds.adequate", &c.Thresholds.Adequate)
	floatValue("session.weight", &c.Session.Weight)
	return err
}
