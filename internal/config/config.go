// Package config loads the substrate's bootstrap/runtime configuration
// from JSON, matching spec.md §6's field list. Decoding rejects
// duplicate object keys rather than silently keeping the last one, the
// same defensive posture the teacher's spec loader took for its own
// JSON documents.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Config is the full bootstrap/runtime document.
type Config struct {
	Bootstrap Bootstrap `json:"bootstrap"`
	Runtime   Runtime   `json:"runtime"`
}

type Bootstrap struct {
	Server        ServerConfig        `json:"server"`
	Execution     ExecutionConfig     `json:"execution"`
	Observability ObservabilityConfig `json:"observability"`
	DataService   DataServiceConfig   `json:"dataservice"`
	Service       ServiceConfig       `json:"service"`
}

type ServerConfig struct {
	URI  string `json:"uri"`
	Port int    `json:"port"`
}

type ExecutionConfig struct {
	PoolExecutor PoolExecutorConfig `json:"pool_executor"`
	SharedQueue  SharedQueueConfig  `json:"shared_queue"`
}

type PoolExecutorConfig struct {
	NumWorkers int `json:"num_workers"`
}

type SharedQueueConfig struct {
	NumWorkers int `json:"num_workers"`
}

type ObservabilityConfig struct {
	ServiceVersion  string  `json:"service_version"`
	OTLPEndpoint    string  `json:"otlp_endpoint"`
	MetricsEnabled  bool    `json:"metrics_enabled"`
	TracingEnabled  bool    `json:"tracing_enabled"`
	LoggingEnabled  bool    `json:"logging_enabled"`
	TraceSampleRate float64 `json:"trace_sample_rate"`
}

type DataServiceConfig struct {
	Client DataServiceClientConfig `json:"client"`
}

type DataServiceClientConfig struct {
	ConnectTimeoutMs int `json:"connect_timeout_ms"`
	RequestTimeoutMs int `json:"request_timeout_ms"`
	PoolSize         int `json:"pool_size"`
}

type ServiceConfig struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

type Runtime struct {
	LoadShedder LoadShedderConfig `json:"load_shedder"`
}

type LoadShedderConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
}

// defaults, per spec.md §6.
const (
	defaultNumWorkers            = 4
	defaultMaxConcurrentRequests = 1000
)

func (c *Config) applyDefaults() {
	if c.Bootstrap.Execution.PoolExecutor.NumWorkers == 0 {
		c.Bootstrap.Execution.PoolExecutor.NumWorkers = defaultNumWorkers
	}
	if c.Runtime.LoadShedder.MaxConcurrentRequests == 0 {
		c.Runtime.LoadShedder.MaxConcurrentRequests = defaultMaxConcurrentRequests
	}
}

// Validate checks the required fields and bounded ranges spec.md §6
// names explicitly.
func (c *Config) Validate() error {
	if c.Bootstrap.Server.URI == "" {
		return fmt.Errorf("config: bootstrap.server.uri is required")
	}
	if c.Bootstrap.Server.Port != 0 && (c.Bootstrap.Server.Port < 1 || c.Bootstrap.Server.Port > 65535) {
		return fmt.Errorf("config: bootstrap.server.port out of range: %d", c.Bootstrap.Server.Port)
	}
	rate := c.Bootstrap.Observability.TraceSampleRate
	if rate < 0.0 || rate > 1.0 {
		return fmt.Errorf("config: bootstrap.observability.trace_sample_rate out of range: %v", rate)
	}
	return nil
}

// Load decodes and validates a config document from r, rejecting
// duplicate keys within any JSON object.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if err := checkNoDuplicateKeys(data); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// checkNoDuplicateKeys walks the raw JSON token stream and errors if any
// object defines the same key twice, which encoding/json otherwise
// silently resolves by keeping the last occurrence.
func checkNoDuplicateKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	return walkDuplicateKeys(dec)
}

func walkDuplicateKeys(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return walkValue(dec, tok)
}

func walkValue(dec *json.Decoder, tok json.Token) error {
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	switch delim {
	case '{':
		seen := make(map[string]bool)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			key, ok := keyTok.(string)
			if !ok {
				return fmt.Errorf("unexpected non-string object key")
			}
			if seen[key] {
				return fmt.Errorf("duplicate key %q", key)
			}
			seen[key] = true

			valTok, err := dec.Token()
			if err != nil {
				return err
			}
			if err := walkValue(dec, valTok); err != nil {
				return err
			}
		}
		// consume closing '}'
		if _, err := dec.Token(); err != nil {
			return err
		}
	case '[':
		for dec.More() {
			valTok, err := dec.Token()
			if err != nil {
				return err
			}
			if err := walkValue(dec, valTok); err != nil {
				return err
			}
		}
		// consume closing ']'
		if _, err := dec.Token(); err != nil {
			return err
		}
	}
	return nil
}
