// Package config loads the operator-authored config document.
//
// The document is read once at startup and is immutable afterwards. A
// missing file is not an error: Load returns a nil document and the caller
// decides policy (the daemon runs on defaults). A present but malformed or
// invalid file is always an error, so a typo can never silently degrade
// into defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wardenhq/core/internal/domain/entities"
)

// Logger is the minimal diagnostic sink the loader needs.
type Logger interface {
	Warnw(msg string, keysAndValues ...interface{})
}

// Default values applied for keys the document omits.
const (
	DefaultMaxConcurrentSessions = 4
	DefaultConnectionTimeout     = 90 * time.Second
	DefaultFarmingDelay          = 15 * time.Minute
	DefaultIPCHost               = "127.0.0.1"
	DefaultIPCPort               = 1242
)

// Owner identifiers exceed 2^53, where JSON numbers silently lose
// precision, so the field travels as a string under a prefixed key.
const (
	stringFieldPrefix = "s_"
	ownerIDKey        = stringFieldPrefix + "owner_id"
)

// Limited-time event apps that must never be acted on, merged into every
// loaded blacklist.
var builtinBlacklist = []uint32{
	267420, 303700, 335590, 368020, 425280, 480730,
	566020, 639900, 762800, 876740, 964630, 1195690,
}

var validate = validator.New()

// carrier receives the raw parsed document. It exists so that nothing
// observable is ever constructed from unvalidated values: parse fills the
// carrier, build validates it and only then produces a Config.
type carrier struct {
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions" validate:"gt=0,lte=32"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout" validate:"gt=0"`
	FarmingDelay          time.Duration `mapstructure:"farming_delay" validate:"gt=0"`
	UpdateChannel         string        `mapstructure:"update_channel" validate:"oneof=none stable experimental"`
	OptimizationMode      string        `mapstructure:"optimization_mode" validate:"oneof=balanced min-memory max-performance"`
	Protocols             uint8         `mapstructure:"protocols"`
	IPCHost               string        `mapstructure:"ipc_host" validate:"required,hostname|ip"`
	IPCPort               int           `mapstructure:"ipc_port" validate:"gte=1,lte=65535"`
	IPCPassword           string        `mapstructure:"ipc_password"`
	IPCPasswordFormat     string        `mapstructure:"ipc_password_format" validate:"oneof=plaintext bcrypt"`
	Blacklist             []uint32      `mapstructure:"blacklist"`
	OwnerID               string        `mapstructure:"s_owner_id"`
	Debug                 bool          `mapstructure:"debug"`
}

// Config is the validated, immutable config document.
type Config struct {
	maxConcurrentSessions int
	connectionTimeout     time.Duration
	farmingDelay          time.Duration
	updateChannel         entities.UpdateChannel
	optimizationMode      entities.OptimizationMode
	protocols             entities.Protocol
	ipcHost               string
	ipcPort               int
	ipcPassword           string
	ipcPasswordFormat     entities.PasswordFormat
	blacklist             map[uint32]struct{}
	blacklistSorted       []uint32
	ownerID               uint64
	debug                 bool
}

// Load reads and validates the config document at path.
//
// A missing file returns (nil, nil). Everything else that prevents a fully
// validated document returns an error: unreadable file, unparseable or
// structurally empty payload, or a field that fails validation.
func Load(path string, log Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("config file %s is empty", path)
	}

	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var c carrier
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := c.build(log)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the document every omitted key resolves to. It is what
// the daemon runs on when no config file exists.
func Default() *Config {
	cfg := &Config{
		maxConcurrentSessions: DefaultMaxConcurrentSessions,
		connectionTimeout:     DefaultConnectionTimeout,
		farmingDelay:          DefaultFarmingDelay,
		updateChannel:         entities.UpdateChannelStable,
		optimizationMode:      entities.OptimizationModeBalanced,
		protocols:             entities.ProtocolsDefault,
		ipcHost:               DefaultIPCHost,
		ipcPort:               DefaultIPCPort,
		ipcPasswordFormat:     entities.PasswordFormatPlaintext,
	}
	cfg.mergeBlacklist(nil)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_concurrent_sessions", DefaultMaxConcurrentSessions)
	v.SetDefault("connection_timeout", DefaultConnectionTimeout.String())
	v.SetDefault("farming_delay", DefaultFarmingDelay.String())
	v.SetDefault("update_channel", string(entities.UpdateChannelStable))
	v.SetDefault("optimization_mode", string(entities.OptimizationModeBalanced))
	v.SetDefault("protocols", uint8(entities.ProtocolsDefault))
	v.SetDefault("ipc_host", DefaultIPCHost)
	v.SetDefault("ipc_port", DefaultIPCPort)
	v.SetDefault("ipc_password", "")
	v.SetDefault("ipc_password_format", string(entities.PasswordFormatPlaintext))
	v.SetDefault(ownerIDKey, "")
	v.SetDefault("debug", false)
}

// build is the validation phase. It never mutates the receiver and returns
// a Config only when every check passed.
func (c *carrier) build(log Logger) (*Config, error) {
	if err := validate.Struct(c); err != nil {
		return nil, err
	}

	protocols := entities.Protocol(c.Protocols)
	if !protocols.IsValid() {
		return nil, fmt.Errorf("protocols mask %d is not a valid transport combination", c.Protocols)
	}

	cfg := &Config{
		maxConcurrentSessions: c.MaxConcurrentSessions,
		connectionTimeout:     c.ConnectionTimeout,
		farmingDelay:          c.FarmingDelay,
		updateChannel:         entities.UpdateChannel(c.UpdateChannel),
		optimizationMode:      entities.OptimizationMode(c.OptimizationMode),
		protocols:             protocols,
		ipcHost:               c.IPCHost,
		ipcPort:               c.IPCPort,
		ipcPassword:           c.IPCPassword,
		ipcPasswordFormat:     entities.PasswordFormat(c.IPCPasswordFormat),
		debug:                 c.Debug,
	}
	cfg.mergeBlacklist(c.Blacklist)

	// A malformed owner ID is the one deliberate exception to strict
	// validation: the field is optional metadata and a bad value must not
	// take the whole document down.
	if c.OwnerID != "" {
		id, err := strconv.ParseUint(c.OwnerID, 10, 64)
		if err != nil {
			log.Warnw("Ignoring malformed owner ID", "key", ownerIDKey, "value", c.OwnerID)
		} else {
			cfg.ownerID = id
		}
	}

	return cfg, nil
}

func (cfg *Config) mergeBlacklist(user []uint32) {
	cfg.blacklist = make(map[uint32]struct{}, len(builtinBlacklist)+len(user))
	for _, id := range builtinBlacklist {
		cfg.blacklist[id] = struct{}{}
	}
	for _, id := range user {
		cfg.blacklist[id] = struct{}{}
	}

	cfg.blacklistSorted = make([]uint32, 0, len(cfg.blacklist))
	for id := range cfg.blacklist {
		cfg.blacklistSorted = append(cfg.blacklistSorted, id)
	}
	slices.Sort(cfg.blacklistSorted)
}

func (cfg *Config) MaxConcurrentSessions() int { return cfg.maxConcurrentSessions }

func (cfg *Config) ConnectionTimeout() time.Duration { return cfg.connectionTimeout }

func (cfg *Config) FarmingDelay() time.Duration { return cfg.farmingDelay }

func (cfg *Config) UpdateChannel() entities.UpdateChannel { return cfg.updateChannel }

func (cfg *Config) OptimizationMode() entities.OptimizationMode { return cfg.optimizationMode }

func (cfg *Config) Protocols() entities.Protocol { return cfg.protocols }

func (cfg *Config) IPCHost() string { return cfg.ipcHost }

func (cfg *Config) IPCPort() int { return cfg.ipcPort }

// IPCAddr returns the IPC listen address.
func (cfg *Config) IPCAddr() string {
	return fmt.Sprintf("%s:%d", cfg.ipcHost, cfg.ipcPort)
}

func (cfg *Config) IPCPassword() string { return cfg.ipcPassword }

func (cfg *Config) IPCPasswordFormat() entities.PasswordFormat { return cfg.ipcPasswordFormat }

// IPCAuthEnabled reports whether IPC requests must present a credential.
func (cfg *Config) IPCAuthEnabled() bool { return cfg.ipcPassword != "" }

// Blacklist returns the sorted union of the built-in denylist and the
// operator-supplied entries.
func (cfg *Config) Blacklist() []uint32 {
	return slices.Clone(cfg.blacklistSorted)
}

// IsBlacklisted reports whether the app may never be acted on.
func (cfg *Config) IsBlacklisted(appID uint32) bool {
	_, ok := cfg.blacklist[appID]
	return ok
}

// OwnerID returns the configured owner identifier, zero when unset.
func (cfg *Config) OwnerID() uint64 { return cfg.ownerID }

// HasOwner reports whether an owner identifier is configured.
func (cfg *Config) HasOwner() bool { return cfg.ownerID != 0 }

func (cfg *Config) Debug() bool { return cfg.debug }
