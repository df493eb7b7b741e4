// Package config loads Portal's INI configuration file into a typed,
// immutable Config struct. The schema, defaults, and validation rules
// mirror the original ProjectMeniscus/portal config module.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Endpoint is a resolved HOST[:PORT] pair.
type Endpoint struct {
	Host string
	Port int

	// PortDefaulted is true when the configured value had no explicit
	// port and the compatibility default (80) was applied.
	PortDefaulted bool
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Core holds [core] section settings.
type Core struct {
	Processes      int
	SyslogBindHost Endpoint
	ZMQBindHost    Endpoint
}

// SSL holds [ssl] section settings.
type SSL struct {
	CertFile string
	KeyFile  string
	Enabled  bool
}

// Logging holds [logging] section settings.
type Logging struct {
	Console   bool
	LogFile   string
	Verbosity slog.Level
}

// Config is the fully-parsed, validated configuration.
type Config struct {
	Core    Core
	SSL     SSL
	Logging Logging
}

// defaultPort is the compatibility default applied to host values with no
// explicit port. This is almost certainly a bug carried over from an HTTP
// config template, but is preserved for compatibility; callers should warn
// when it's applied to a syslog/push binding.
const defaultPort = 80

const (
	defaultProcesses      = 1
	defaultSyslogBindHost = "localhost:5140"
	defaultZMQBindHost    = "localhost:5000"
	defaultVerbosity      = "WARNING"
)

// Load reads and validates the INI file at path.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, &Error{Kind: ErrMissing, Path: path, cause: err}
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (*Config, error) {
	cfg := &Config{}

	coreSec := f.Section("core")
	cfg.Core.Processes = coreSec.Key("processes").MustInt(defaultProcesses)

	syslogHost, err := parseHostPort(coreSec.Key("syslog_bind_host").MustString(defaultSyslogBindHost))
	if err != nil {
		return nil, err
	}
	cfg.Core.SyslogBindHost = syslogHost

	zmqHost, err := parseHostPort(coreSec.Key("zmq_bind_host").MustString(defaultZMQBindHost))
	if err != nil {
		return nil, err
	}
	cfg.Core.ZMQBindHost = zmqHost

	sslSec := f.Section("ssl")
	cfg.SSL.CertFile = sslSec.Key("cert_file").String()
	cfg.SSL.KeyFile = sslSec.Key("key_file").String()
	switch {
	case cfg.SSL.CertFile != "" && cfg.SSL.KeyFile != "":
		cfg.SSL.Enabled = true
	case cfg.SSL.CertFile != "" || cfg.SSL.KeyFile != "":
		return nil, &Error{Kind: ErrIncompleteTLS}
	}

	logSec := f.Section("logging")
	cfg.Logging.Console = logSec.Key("console").MustBool(true)
	cfg.Logging.LogFile = logSec.Key("logfile").String()
	verbosity := strings.ToUpper(logSec.Key("verbosity").MustString(defaultVerbosity))
	level, err := parseVerbosity(verbosity)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Verbosity = level

	return cfg, nil
}

// parseHostPort parses a HOST[:PORT] value. A missing port defaults to 80
// for compatibility with the original template (PortDefaulted is set so the
// caller can log a warning).
func parseHostPort(value string) (Endpoint, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Endpoint{}, &Error{Kind: ErrMalformedHost, Value: value}
	}

	host, portStr, found := strings.Cut(value, ":")
	if !found {
		return Endpoint{Host: host, Port: defaultPort, PortDefaulted: true}, nil
	}
	if host == "" || portStr == "" {
		return Endpoint{}, &Error{Kind: ErrMalformedHost, Value: value}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, &Error{Kind: ErrMalformedHost, Value: value}
	}
	return Endpoint{Host: host, Port: port}, nil
}

func parseVerbosity(s string) (slog.Level, error) {
	switch s {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		// slog has no level above Error; CRITICAL maps onto a custom
		// level above Error so it still sorts correctly.
		return slog.Level(12), nil
	default:
		return 0, &Error{Kind: ErrMalformedHost, Value: s}
	}
}
