// Package config defines the canonical, JSON-serializable configuration model
// for the bulk loader. It is intentionally small, explicit, and dependency-
// free so that run configurations can be loaded from disk and passed through
// the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in run files.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "data_dir": "data",
//	  "storage":  { "kind": "sqlite", "db": { "dsn": "enforcement.db" } },
//	  "runtime":  { "workers": 0, "chunk_size": 50000 },
//	  "metrics":  { "kind": "prompush", "options": { "gateway_url": "http://pushgateway:9091" } }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config describes one load run in JSON. It is the top-level object decoded
// from a run file.
type Config struct {
	// DataDir is the directory holding the downloaded extract files.
	DataDir string `json:"data_dir"`

	// Sources optionally overrides the extract file name per table, e.g.
	// {"inspections": "osha_inspection_2019.csv"}. Tables without an entry use
	// their default file name.
	Sources map[string]string `json:"sources"`

	// Storage describes where transformed records are written.
	Storage Storage `json:"storage"`

	// Runtime controls concurrency and batching.
	Runtime RuntimeConfig `json:"runtime"`

	// Metrics optionally selects a metrics backend.
	Metrics Metrics `json:"metrics"`
}

// RuntimeConfig controls concurrency, chunking, and batching. Zero values
// mean "let the loader decide": workers from the engine cap, chunk and batch
// sizes from their defaults.
type RuntimeConfig struct {
	Workers   int `json:"workers"`
	ChunkSize int `json:"chunk_size"`
	BatchSize int `json:"batch_size"`
}

// Storage selects the backend used to persist transformed records.
type Storage struct {
	// Kind selects the storage implementation: "sqlite", "postgres", or
	// "generic".
	Kind string `json:"kind"`

	// DB configures the selected backend.
	DB DBConfig `json:"db"`
}

// DBConfig configures the DB sink.
type DBConfig struct {
	// DSN is the connection string: a file path for sqlite, a pgx URL for
	// postgres, or "driver://dsn" for the generic backend.
	DSN string `json:"dsn"`
}

// Metrics selects an optional metrics backend. An empty Kind leaves the
// default no-op backend in place.
type Metrics struct {
	// Kind selects the backend implementation. Current value: "prompush".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the backend implementation.
	// For prompush, keys are gateway_url (string) and job (string).
	Options Options `json:"options"`
}

// Load decodes a run configuration from path and applies defaults.
func Load(path string) (Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config: decode %s: %w", path, err)
	}
	c.ApplyDefaults()
	return c, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = "sqlite"
	}
	if c.Storage.Kind == "sqlite" && c.Storage.DB.DSN == "" {
		c.Storage.DB.DSN = "enforcement.db"
	}
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
