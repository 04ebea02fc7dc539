package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is looked up in the directory passed to Load.
const ConfigFileName = "tactiboard.cfg.json"

// EnvPrefix prefixes environment overrides: db.password is read from
// TACTIBOARD_DB_PASSWORD.
const EnvPrefix = "TACTIBOARD"

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// BoardConfig holds field dimensions and the recording/compile settings.
type BoardConfig struct {
	FieldWidth      float64
	FieldHeight     float64
	HistoryCapacity int
	PhaseDuration   time.Duration
	PhaseGap        time.Duration
	MinDisplacement float64
}

// PlaybackConfig holds frame loop settings.
type PlaybackConfig struct {
	FrameInterval time.Duration
	DefaultSpeed  float64
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration
	DumpPath     string
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type   string
	Memory MemoryConfig
	SQLite SQLiteConfig
}

// DBConfig holds postgres connection settings
type DBConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// APIConfig holds HTTP listener and remote sync settings
type APIConfig struct {
	Listen    string
	ServerURL string
	APIKey    string
	Tag       string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("board.fieldWidth", 105.0)
	viper.SetDefault("board.fieldHeight", 68.0)
	viper.SetDefault("board.historyCapacity", 50)

	viper.SetDefault("recorder.phaseDuration", "3s")
	viper.SetDefault("compiler.phaseGap", "500ms")
	viper.SetDefault("compiler.minDisplacement", 1.0)

	viper.SetDefault("playback.frameInterval", "16ms")
	viper.SetDefault("playback.defaultSpeed", 1.0)

	viper.SetDefault("api.listen", ":8080")
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.tag", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./library")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./library/tactiboard.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "tactiboard")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tactiboard")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "tactiboard")
	viper.SetDefault("influx.bucket", "playback")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Validate checks the loaded values the engine cannot run without.
func Validate() error {
	var errs []error
	bc := GetBoardConfig()
	if bc.FieldWidth <= 0 || bc.FieldHeight <= 0 {
		errs = append(errs, fmt.Errorf("board field must have positive dimensions, got %vx%v", bc.FieldWidth, bc.FieldHeight))
	}
	if bc.HistoryCapacity < 1 {
		errs = append(errs, fmt.Errorf("board.historyCapacity must be at least 1, got %d", bc.HistoryCapacity))
	}
	if bc.PhaseDuration <= 0 {
		errs = append(errs, fmt.Errorf("recorder.phaseDuration must be positive, got %v", bc.PhaseDuration))
	}
	if bc.PhaseGap < 0 || bc.MinDisplacement < 0 {
		errs = append(errs, errors.New("compiler.phaseGap and compiler.minDisplacement must not be negative"))
	}
	if pc := GetPlaybackConfig(); pc.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("playback.frameInterval must be positive, got %v", pc.FrameInterval))
	}
	switch t := GetStorageConfig().Type; t {
	case "", "memory", "sqlite", "postgres", "websocket":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", t))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// GetBoardConfig returns the board, recorder and compiler settings.
func GetBoardConfig() BoardConfig {
	return BoardConfig{
		FieldWidth:      viper.GetFloat64("board.fieldWidth"),
		FieldHeight:     viper.GetFloat64("board.fieldHeight"),
		HistoryCapacity: viper.GetInt("board.historyCapacity"),
		PhaseDuration:   viper.GetDuration("recorder.phaseDuration"),
		PhaseGap:        viper.GetDuration("compiler.phaseGap"),
		MinDisplacement: viper.GetFloat64("compiler.minDisplacement"),
	}
}

// GetPlaybackConfig returns the frame loop settings.
func GetPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		FrameInterval: viper.GetDuration("playback.frameInterval"),
		DefaultSpeed:  viper.GetFloat64("playback.defaultSpeed"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
	}
}

// GetDBConfig returns the postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAPIConfig returns the HTTP listener and remote sync settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Listen:    viper.GetString("api.listen"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Tag:       viper.GetString("api.tag"),
	}
}
