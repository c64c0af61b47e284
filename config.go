package meshql

import (
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultRequestTimeout is applied when the configuration leaves
// requestTimeout unset.
const DefaultRequestTimeout = 200000 * time.Millisecond

// ConfigError reports a missing or malformed configuration value. It is
// returned synchronously, before any loading or traversal begins.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid mesh configuration: " + e.Reason
}

// LoadOptions control how the proto source and its imports are located.
type LoadOptions struct {
	// IncludeDirs is an ordered list of directories searched for the proto
	// file and its relative imports.
	IncludeDirs []string `json:"includeDirs"`
}

// ProtoFile locates the proto source. In JSON it accepts either a plain
// path string or an object of the form {"file": ..., "load": {"includeDirs":
// [...]}}.
type ProtoFile struct {
	File string      `json:"file"`
	Load LoadOptions `json:"load"`
}

// UnmarshalJSON accepts both locator shapes. A non-list includeDirs value is
// a configuration error.
func (p *ProtoFile) UnmarshalJSON(data []byte) error {
	var file string
	if err := json.Unmarshal(data, &file); err == nil {
		p.File = file
		p.Load = LoadOptions{}
		return nil
	}

	var aux struct {
		File string `json:"file"`
		Load struct {
			IncludeDirs json.RawMessage `json:"includeDirs"`
		} `json:"load"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return &ConfigError{Reason: "protoFilePath must be a string or a {file, load} object"}
	}

	p.File = aux.File
	p.Load = LoadOptions{}
	if len(aux.Load.IncludeDirs) > 0 && string(aux.Load.IncludeDirs) != "null" {
		var dirs []string
		if err := json.Unmarshal(aux.Load.IncludeDirs, &dirs); err != nil {
			return &ConfigError{Reason: "includeDirs must be a list of directories"}
		}
		p.Load.IncludeDirs = dirs
	}
	return nil
}

// Config describes one remote gRPC service mesh source.
type Config struct {
	// ProtoFile locates the proto source describing the remote API. Ignored
	// when UseReflection is set.
	ProtoFile ProtoFile `json:"protoFilePath"`

	// PackageName is the root package; declarations directly under it get
	// unqualified schema names.
	PackageName string `json:"packageName"`

	// ServiceName is the primary service, whose method fields stay
	// unprefixed.
	ServiceName string `json:"serviceName"`

	// Endpoint is the host:port of the gRPC server.
	Endpoint string `json:"endpoint"`

	// RequestTimeout bounds each end-to-end request, in milliseconds. The
	// timeout is enforced by the serving layer, not inside the engine.
	RequestTimeout int64 `json:"requestTimeout"`

	// UseReflection loads the protocol description from the server's
	// reflection service instead of a proto file.
	UseReflection bool `json:"useReflection"`

	// UseTLS enables transport security; Insecure skips certificate
	// verification.
	UseTLS   bool `json:"useTls"`
	Insecure bool `json:"insecure"`

	// Debug enables debug logging when no Logger is supplied.
	Debug bool `json:"debug"`

	// Logger overrides the default logger.
	Logger *slog.Logger `json:"-"`
}

// Timeout returns the configured request timeout, or the default.
func (c *Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

func (c *Config) validate() error {
	if c.Endpoint == "" {
		return &ConfigError{Reason: "endpoint is required"}
	}
	if c.PackageName == "" {
		return &ConfigError{Reason: "packageName is required"}
	}
	if c.ServiceName == "" {
		return &ConfigError{Reason: "serviceName is required"}
	}
	if c.ProtoFile.File == "" && !c.UseReflection {
		return &ConfigError{Reason: "protoFilePath is required unless useReflection is set"}
	}
	return nil
}
