// Package config handles toolmux configuration loading.
//
// Two sources feed the process: a YAML document describing the managed
// tool servers (mcp_servers.yaml), and a handful of environment
// variables for daemon-level settings (see Settings). The YAML file is
// the source of truth for which servers exist; declaration order in the
// file is preserved everywhere servers are listed or started.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the server configuration file toolmux looks for.
const DefaultFileName = "mcp_servers.yaml"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag or TOOLMUX_CONFIG) is checked first.
// Then: ./mcp_servers.yaml, ~/.config/toolmux/mcp_servers.yaml,
// /etc/toolmux/mcp_servers.yaml.
func DefaultSearchPaths() []string {
	paths := []string{DefaultFileName}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "toolmux", DefaultFileName))
	}

	paths = append(paths, filepath.Join("/etc/toolmux", DefaultFileName))
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// ServerConfig describes one managed tool server. Entries are immutable
// once loaded; a config change takes effect the next time the server is
// started.
type ServerConfig struct {
	Command     []string          `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Description string            `yaml:"description"`
	Enabled     bool              `yaml:"enabled"`

	// Transport selects how the server is reached: "stdio" (the
	// default, a spawned child process) or "http" (a remote endpoint).
	Transport string `yaml:"transport,omitempty"`
	// URL and Headers apply only to the http transport.
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// CommandLine returns the spawn command and args joined into one
// printable string, as shown in status output.
func (sc ServerConfig) CommandLine() string {
	parts := append(append([]string{}, sc.Command...), sc.Args...)
	return strings.Join(parts, " ")
}

// ServerSet is an ordered collection of named server configs. A plain
// map[string]ServerConfig would lose the file's declaration order, so
// the YAML mapping node is walked directly and the key order kept.
type ServerSet struct {
	names  []string
	byName map[string]ServerConfig
}

// UnmarshalYAML decodes a mapping of server name to ServerConfig,
// recording keys in document order.
func (s *ServerSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.New("mcp_servers: expected a mapping of server names")
	}

	s.names = nil
	s.byName = make(map[string]ServerConfig, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("mcp_servers: bad server name: %w", err)
		}

		var sc ServerConfig
		if err := node.Content[i+1].Decode(&sc); err != nil {
			return fmt.Errorf("mcp_servers: server %s: %w", name, err)
		}

		if _, dup := s.byName[name]; dup {
			return fmt.Errorf("mcp_servers: duplicate server %s", name)
		}

		s.names = append(s.names, name)
		s.byName[name] = sc
	}

	return nil
}

// MarshalYAML emits the mapping with keys in declaration order.
func (s ServerSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, name := range s.names {
		var key, val yaml.Node
		key.SetString(name)
		if err := val.Encode(s.byName[name]); err != nil {
			return nil, fmt.Errorf("mcp_servers: server %s: %w", name, err)
		}
		node.Content = append(node.Content, &key, &val)
	}

	return node, nil
}

// Names returns server names in declaration order.
func (s ServerSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Get looks up a server config by name.
func (s ServerSet) Get(name string) (ServerConfig, bool) {
	sc, ok := s.byName[name]
	return sc, ok
}

// Len returns the number of configured servers.
func (s ServerSet) Len() int {
	return len(s.names)
}

// Set adds or replaces a server config. New names append to the order.
func (s *ServerSet) Set(name string, sc ServerConfig) {
	if s.byName == nil {
		s.byName = make(map[string]ServerConfig)
	}
	if _, exists := s.byName[name]; !exists {
		s.names = append(s.names, name)
	}
	s.byName[name] = sc
}

// GlobalSettings are knobs shared by all servers.
type GlobalSettings struct {
	// MaxServers caps how many servers StartEnabled will bring up.
	MaxServers int `yaml:"max_servers"`
	// TimeoutSeconds bounds the handshake and each tool call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// WorkspaceDirectory is created before servers start so file
	// oriented servers have a place to work.
	WorkspaceDirectory string `yaml:"workspace_directory"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

// Timeout returns TimeoutSeconds as a duration, defaulting to 30s when
// unset or nonsense.
func (g GlobalSettings) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Config holds the full server configuration document.
type Config struct {
	Servers ServerSet      `yaml:"mcp_servers"`
	Global  GlobalSettings `yaml:"global_settings"`
}

// Load reads configuration from a YAML file. Environment variable
// references like ${TOKEN} are expanded before parsing so secrets can
// stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Global: Default().Global,
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrCreate loads the config at path. A missing file is not an
// error: the default document is written there and returned. A file
// that exists but fails to parse is left untouched and the defaults
// are returned in memory, so a typo never takes the process down.
func LoadOrCreate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		if werr := WriteDefault(path); werr != nil {
			return Default(), fmt.Errorf("write default config: %w", werr)
		}
		return Default(), nil
	}

	return Default(), err
}

// WriteDefault writes the default config document to path, creating
// parent directories as needed.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0o644)
}

// Default returns the default configuration: two sample servers and
// conservative global settings.
func Default() *Config {
	var servers ServerSet
	servers.Set("filesystem", ServerConfig{
		Command:     []string{"uvx", "mcp-server-filesystem"},
		Args:        []string{"/tmp/mcp-workspace"},
		Description: "File system operations",
		Enabled:     true,
		Env:         map[string]string{},
	})
	servers.Set("time", ServerConfig{
		Command:     []string{"uvx", "mcp-server-time"},
		Args:        []string{},
		Description: "Time and date operations",
		Enabled:     true,
		Env:         map[string]string{},
	})

	return &Config{
		Servers: servers,
		Global: GlobalSettings{
			MaxServers:         5,
			TimeoutSeconds:     30,
			WorkspaceDirectory: "/tmp/mcp-workspace",
		},
	}
}
