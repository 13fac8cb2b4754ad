package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/samples"
	"github.com/chrissnell/fluidwatch/internal/window"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, with defaults applied and validated
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Device          DeviceData       `json:"device" yaml:"device"`
	Chart           ChartData        `json:"chart" yaml:"chart"`
	Thresholds      ThresholdData    `json:"thresholds" yaml:"thresholds"`
	Session         SessionData      `json:"session" yaml:"session"`
	RefreshInterval string           `json:"refresh_interval,omitempty" yaml:"refresh_interval,omitempty"`
	Storage         StorageData      `json:"storage,omitempty" yaml:"storage,omitempty"`
	Controllers     []ControllerData `json:"controllers,omitempty" yaml:"controllers,omitempty"`
}

// DeviceData describes the sensor's HTTP API
type DeviceData struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ChartData holds the sampling cadence and the supported display ranges
type ChartData struct {
	IntervalMinutes int         `json:"interval_minutes,omitempty" yaml:"interval_minutes,omitempty"`
	HorizonHours    int         `json:"horizon_hours,omitempty" yaml:"horizon_hours,omitempty"`
	Ranges          []RangeData `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	Location        string      `json:"location,omitempty" yaml:"location,omitempty"`
}

// RangeData is one display range and the width of the bars drawn for it.
// A bucket_minutes of 0 draws raw samples.
type RangeData struct {
	RangeHours    int    `json:"range_hours" yaml:"range_hours"`
	BucketMinutes int    `json:"bucket_minutes" yaml:"bucket_minutes"`
	Unit          string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// ThresholdData holds the GOOD and ADEQUATE rate cutoffs
type ThresholdData struct {
	Good     float64 `json:"good,omitempty" yaml:"good,omitempty"`
	Adequate float64 `json:"adequate,omitempty" yaml:"adequate,omitempty"`
}

// SessionData holds the optional default patient weight
type SessionData struct {
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// StorageData holds the configuration for the optional storage backends
type StorageData struct {
	SQLite   *SQLiteData   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres *PostgresData `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	Redis    *RedisData    `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path" yaml:"path"`
}

type PostgresData struct {
	ConnectionString string `json:"connection_string" yaml:"connection_string"`
}

type RedisData struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	TTL      string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// ControllerData holds the configuration for the served APIs
type ControllerData struct {
	Type       string          `json:"type" yaml:"type"`
	RESTServer *RESTServerData `json:"rest,omitempty" yaml:"rest,omitempty"`
	GRPC       *GRPCData       `json:"grpc,omitempty" yaml:"grpc,omitempty"`
}

type RESTServerData struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

type GRPCData struct {
	Cert       string `json:"cert,omitempty" yaml:"cert,omitempty"`
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

const (
	DefaultIntervalMinutes = 15
	DefaultHorizonHours    = 7 * 24
	DefaultRefreshInterval = time.Minute
	DefaultDeviceTimeout   = 10 * time.Second
	DefaultRESTPort        = 8080
	DefaultRedisKey        = "fluidwatch:latest"
)

// ApplyDefaults fills every unset field with its default
func (c *ConfigData) ApplyDefaults() {
	if c.Device.Name == "" {
		c.Device.Name = "sensor"
	}
	if c.Chart.IntervalMinutes == 0 {
		c.Chart.IntervalMinutes = DefaultIntervalMinutes
	}
	if c.Chart.HorizonHours == 0 {
		c.Chart.HorizonHours = DefaultHorizonHours
	}
	if len(c.Chart.Ranges) == 0 {
		for _, s := range window.DefaultSpecs() {
			c.Chart.Ranges = append(c.Chart.Ranges, RangeData(s))
		}
	}
	if c.Thresholds.Good == 0 && c.Thresholds.Adequate == 0 {
		d := rate.DefaultThresholds()
		c.Thresholds = ThresholdData{Good: d.Good, Adequate: d.Adequate}
	}
	if c.Storage.Redis != nil && c.Storage.Redis.Key == "" {
		c.Storage.Redis.Key = DefaultRedisKey
	}
	for i := range c.Controllers {
		if c.Controllers[i].Type == "rest" && c.Controllers[i].RESTServer == nil {
			c.Controllers[i].RESTServer = &RESTServerData{}
		}
		if rs := c.Controllers[i].RESTServer; rs != nil && rs.Port == 0 {
			rs.Port = DefaultRESTPort
		}
	}
}

// Validate reports the first configuration problem found
func (c *ConfigData) Validate() error {
	if c.Device.BaseURL == "" {
		return errors.New("device.base_url is required")
	}
	u, err := url.Parse(c.Device.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("device.base_url %q is not an absolute URL", c.Device.BaseURL)
	}
	if _, err := c.DeviceTimeout(); err != nil {
		return err
	}
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	if _, err := c.Table(); err != nil {
		return fmt.Errorf("chart.ranges: %w", err)
	}
	if _, err := c.LoadLocation(); err != nil {
		return err
	}
	if err := c.RateThresholds().Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if c.Session.Weight != 0 {
		if err := rate.ValidateWeight(c.Session.Weight); err != nil {
			return fmt.Errorf("session.weight: %w", err)
		}
	}
	if _, err := c.RefreshEvery(); err != nil {
		return err
	}
	if r := c.Storage.Redis; r != nil {
		if r.Addr == "" {
			return errors.New("storage.redis.addr is required when redis storage is configured")
		}
		if _, err := parseDuration("storage.redis.ttl", r.TTL, 0); err != nil {
			return err
		}
	}
	if s := c.Storage.SQLite; s != nil && s.Path == "" {
		return errors.New("storage.sqlite.path is required when sqlite storage is configured")
	}
	if p := c.Storage.Postgres; p != nil && p.ConnectionString == "" {
		return errors.New("storage.postgres.connection_string is required when postgres storage is configured")
	}
	for _, ctrl := range c.Controllers {
		switch ctrl.Type {
		case "rest":
		case "grpc":
			if ctrl.GRPC == nil || ctrl.GRPC.Port == 0 {
				return errors.New("grpc controller requires grpc.port")
			}
		default:
			return fmt.Errorf("unsupported controller type %q", ctrl.Type)
		}
	}
	return nil
}

// Geometry returns the buffer cadence
func (c *ConfigData) Geometry() samples.Geometry {
	return samples.Geometry{IntervalMinutes: c.Chart.IntervalMinutes, HorizonHours: c.Chart.HorizonHours}
}

// Table builds the range table from chart.ranges
func (c *ConfigData) Table() (window.Table, error) {
	specs := make([]window.Spec, len(c.Chart.Ranges))
	for i, r := range c.Chart.Ranges {
		specs[i] = window.Spec(r)
	}
	return window.NewTable(specs...)
}

// RateThresholds returns the classifier cutoffs
func (c *ConfigData) RateThresholds() rate.Thresholds {
	return rate.Thresholds{Good: c.Thresholds.Good, Adequate: c.Thresholds.Adequate}
}

// LoadLocation resolves chart.location; empty means the host's local zone
func (c *ConfigData) LoadLocation() (*time.Location, error) {
	if c.Chart.Location == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Chart.Location)
	if err != nil {
		return nil, fmt.Errorf("chart.location: %w", err)
	}
	return loc, nil
}

// RefreshEvery returns the periodic refresh interval
func (c *ConfigData) RefreshEvery() (time.Duration, error) {
	return parseDuration("refresh_interval", c.RefreshInterval, DefaultRefreshInterval)
}

// DeviceTimeout returns the per-request timeout for device calls
func (c *ConfigData) DeviceTimeout() (time.Duration, error) {
	return parseDuration("device.timeout", c.Device.Timeout, DefaultDeviceTimeout)
}

// RedisTTL returns how long a shared snapshot lives in redis; zero keeps it forever
func (c *ConfigData) RedisTTL() time.Duration {
	if c.Storage.Redis == nil {
		return 0
	}
	d, _ := parseDuration("storage.redis.ttl", c.Storage.Redis.TTL, 0)
	return d
}

// Controller returns the first controller of the given type
func (c *ConfigData) Controller(controllerType string) (ControllerData, bool) {
	for _, ctrl := range c.Controllers {
		if ctrl.Type == controllerType {
			return ctrl, true
		}
	}
	return ControllerData{}, false
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

// finalize is shared by all providers
func finalize(c *ConfigData) (*ConfigData, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
