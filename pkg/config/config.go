// Package config loads the host configuration from YAML with PATCHBAY_
// environment overrides.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PATCHBAY_"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

type Config struct {
	// Patch is the stored patch loaded at startup and saved on shutdown.
	Patch  string       `yaml:"patch" mapstructure:"patch" validate:"omitempty,max=200"`
	Audio  AudioConfig  `yaml:"audio" mapstructure:"audio"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	HTTP   HTTPConfig   `yaml:"http" mapstructure:"http"`
	MCP    MCPConfig    `yaml:"mcp" mapstructure:"mcp"`
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

type AudioConfig struct {
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gt=0,lte=384000"`
	BlockSize  int     `yaml:"block_size" mapstructure:"block_size" validate:"min=16,max=8192"`
	Inputs     int     `yaml:"inputs" mapstructure:"inputs" validate:"min=0,max=64"`
	Outputs    int     `yaml:"outputs" mapstructure:"outputs" validate:"min=0,max=64"`
}

type EngineConfig struct {
	Policy string `yaml:"policy" mapstructure:"policy" validate:"oneof=replace queue"`
}

type StoreConfig struct {
	Backend string      `yaml:"backend" mapstructure:"backend" validate:"oneof=memory file redis s3"`
	Path    string      `yaml:"path" mapstructure:"path"`
	Redis   RedisConfig `yaml:"redis" mapstructure:"redis"`
	S3      S3Config    `yaml:"s3" mapstructure:"s3"`
	// EncryptionKey is a hex encoded AES-256 key. When set, snapshots are
	// encrypted at rest.
	EncryptionKey string `yaml:"encryption_key" mapstructure:"encryption_key" validate:"omitempty,hexadecimal,len=64"`
	// Redact lists custom property keys masked before saving.
	Redact []string `yaml:"redact" mapstructure:"redact"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db" validate:"min=0,max=15"`
	Prefix   string        `yaml:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl" validate:"min=0"`
	// Lock enables the distributed patch lock.
	Lock bool `yaml:"lock" mapstructure:"lock"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr" validate:"required"`
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

type MCPConfig struct {
	// Addr serves MCP over SSE. Empty means stdio.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type WorkerConfig struct {
	File    string        `yaml:"file" mapstructure:"file"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"min=0"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Audio:  AudioConfig{SampleRate: 48000, BlockSize: 256, Inputs: 2, Outputs: 2},
		Engine: EngineConfig{Policy: "replace"},
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    ".patchbay/patches",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Worker: WorkerConfig{File: "workers.yaml", Timeout: 10 * time.Second},
		Log:    LogConfig{Level: "info"},
	}
}

// envKeys maps each override to its path in the config document.
var envKeys = map[string]string{
	"PATCH":          "patch",
	"SAMPLE_RATE":    "audio.sample_rate",
	"BLOCK_SIZE":     "audio.block_size",
	"AUDIO_INPUTS":   "audio.inputs",
	"AUDIO_OUTPUTS":  "audio.outputs",
	"PUBLISH_POLICY": "engine.policy",
	"STORE_BACKEND":  "store.backend",
	"STORE_PATH":     "store.path",
	"ENCRYPTION_KEY": "store.encryption_key",
	"REDIS_ADDR":     "store.redis.addr",
	"REDIS_PASSWORD": "store.redis.password",
	"REDIS_DB":       "store.redis.db",
	"REDIS_PREFIX":   "store.redis.prefix",
	"REDIS_TTL":      "store.redis.ttl",
	"REDIS_LOCK":     "store.redis.lock",
	"S3_BUCKET":      "store.s3.bucket",
	"S3_REGION":      "store.s3.region",
	"S3_ENDPOINT":    "store.s3.endpoint",
	"S3_ACCESS_KEY":  "store.s3.access_key",
	"S3_SECRET_KEY":  "store.s3.secret_key",
	"S3_PREFIX":      "store.s3.prefix",
	"HTTP_ADDR":      "http.addr",
	"JWT_SECRET":     "http.jwt_secret",
	"MCP_ADDR":       "mcp.addr",
	"WORKERS_FILE":   "worker.file",
	"WORKER_TIMEOUT": "worker.timeout",
	"LOG_LEVEL":      "log.level",
	"LOG_JSON":       "log.json",
}

var validate = validator.New()

// Load reads path (if not empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from PATCHBAY_ variables found by lookup.
// Values are weakly typed: "true", "1024" and "30s" all decode.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	doc := map[string]any{}
	found := false
	for env, path := range envKeys {
		v, ok := lookup(EnvPrefix + env)
		if !ok {
			continue
		}
		found = true
		setPath(doc, strings.Split(path, "."), v)
	}
	if v, ok := lookup(EnvPrefix + "STORE_REDACT"); ok {
		found = true
		setPath(doc, []string{"store", "redact"}, splitAndTrim(v))
	}
	if !found {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(doc); err != nil {
		return fmt.Errorf("environment override: %w", err)
	}
	return nil
}

func setPath(doc map[string]any, path []string, v any) {
	for _, key := range path[:len(path)-1] {
		next, ok := doc[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			doc[key] = next
		}
		doc = next
	}
	doc[path[len(path)-1]] = v
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks field constraints and the settings each store backend
// needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the file backend")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	case BackendS3:
		if c.Store.S3.Bucket == "" {
			return errors.New("store.s3.bucket is required for the s3 backend")
		}
	}
	return nil
}

// EncryptionKey decodes Store.EncryptionKey. It returns nil when unset.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Store.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	return key, nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, e.Param()))
		case "min", "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must not exceed %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, e.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
