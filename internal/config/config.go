// Package config holds backend connection settings and the orchestrator's
// client map. Values are immutable once loaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"orchestrator-api/internal/shared"

	"gopkg.in/yaml.v3"
)

type TLSConfig struct {
	CertPath           string `yaml:"cert_path" json:"cert_path,omitempty"`
	KeyPath            string `yaml:"key_path" json:"key_path,omitempty"`
	ClientCAPath       string `yaml:"client_ca_cert_path" json:"client_ca_cert_path,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure" json:"insecure,omitempty"`
}

// ServiceConfig describes one backend connection. HealthService, when set,
// is a separate connection used only for health probes.
type ServiceConfig struct {
	Hostname       string         `yaml:"hostname" json:"hostname"`
	Port           uint16         `yaml:"port" json:"port,omitempty"`
	TLS            *TLSConfig     `yaml:"tls" json:"tls,omitempty"`
	RequestTimeout time.Duration  `yaml:"request_timeout" json:"request_timeout,omitempty"`
	HealthService  *ServiceConfig `yaml:"health_service" json:"health_service,omitempty"`
}

// PortOr returns the configured port, or def when none is set.
func (s ServiceConfig) PortOr(def uint16) uint16 {
	if s.Port == 0 {
		return def
	}
	return s.Port
}

func (s ServiceConfig) Timeout() time.Duration {
	if s.RequestTimeout <= 0 {
		return shared.DefaultRequestTimeout
	}
	return s.RequestTimeout
}

func (s ServiceConfig) Validate() error {
	if s.Hostname == "" {
		return errors.New("hostname is required")
	}
	if s.TLS != nil && (s.TLS.CertPath == "") != (s.TLS.KeyPath == "") {
		return errors.New("tls cert_path and key_path must be set together")
	}
	if s.HealthService != nil {
		if s.HealthService.HealthService != nil {
			return errors.New("health_service cannot be nested")
		}
		if err := s.HealthService.Validate(); err != nil {
			return fmt.Errorf("health_service: %w", err)
		}
	}
	return nil
}

// Config maps capability kind -> logical name -> service.
type Config struct {
	Clients map[string]map[string]ServiceConfig `yaml:"clients"`

	// Logical names used when a task does not carry one.
	DefaultNlpClient   string `yaml:"default_nlp_client"`
	ChatGenerationName string `yaml:"chat_generation_name"`
}

func (c *Config) applyDefaults() {
	if c.Clients == nil {
		c.Clients = map[string]map[string]ServiceConfig{}
	}
	if c.DefaultNlpClient == "" {
		c.DefaultNlpClient = shared.DefaultNlpClientName
	}
	if c.ChatGenerationName == "" {
		c.ChatGenerationName = shared.DefaultChatGenerationName
	}
}

func (c *Config) Validate() error {
	var errs []error
	for kind, byName := range c.Clients {
		for name, svc := range byName {
			if name == "" {
				errs = append(errs, fmt.Errorf("clients.%s: empty client name", kind))
				continue
			}
			if err := svc.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("clients.%s.%s: %w", kind, name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Merge adds svc under kind/name unless that pair is already configured,
// in which case the existing entry wins.
func (c *Config) Merge(kind, name string, svc ServiceConfig) bool {
	byName, ok := c.Clients[kind]
	if !ok {
		byName = map[string]ServiceConfig{}
		c.Clients[kind] = byName
	}
	if _, exists := byName[name]; exists {
		return false
	}
	byName[name] = svc
	return true
}

// New returns an empty config with defaults applied.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(b)
}
