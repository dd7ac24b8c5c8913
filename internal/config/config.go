package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// envKeys maps the flat environment variable names the proxy documents to
// their koanf paths. Variables not listed here are ignored.
var envKeys = map[string]string{
	"HOST":                           "server.host",
	"PORT":                           "server.port",
	"HTTP_TIMEOUT":                   "http.timeout_seconds",
	"HTTP_MAX_PAGE_SIZE":             "http.max_page_size_kb",
	"HTTP_USER_AGENT":                "http.user_agent",
	"HTTP_SOCKS_PROXY":               "http.socks_proxy",
	"IMAGE_MAX_SIZE":                 "image.max_size_mb",
	"IMAGE_MAX_SVG_SIZE":             "image.max_svg_size_kb",
	"IMAGE_SVG_TIMEOUT":              "image.svg_timeout_seconds",
	"IMAGE_MAX_PIXELS":               "image.max_pixels",
	"IMAGE_MAX_DIMENSION":            "image.max_dimension",
	"IMAGE_MAX_PER_PAGE":             "image.max_per_page",
	"IMAGE_PROCESSING_TIMEOUT":       "image.timeout_seconds",
	"IMAGE_DITHER_PRIORITY":          "image.dither_priority",
	"IMAGE_EBD_COMPRESS":             "image.ebd_compress",
	"SECURITY_ATTEMPT_HTTPS_UPGRADE": "security.attempt_https_upgrade",
	"SECURITY_ALLOW_REDIRECTS":       "security.allow_redirects",
	"SECURITY_MAX_REDIRECTS":         "security.max_redirects",
	"SECURITY_MAX_REQUESTS_PER_MIN":  "security.max_requests_per_min",
	"SECURITY_MAX_REQUEST_SIZE":      "security.max_request_size_mb",
	"LOG_LEVEL":                      "log.level",
	"LOG_FILE":                       "log.file",
	"COOKIE_DB_PATH":                 "cookies.db_path",
}

// Load reads configuration from the given YAML file (if it exists), then
// overlays environment variable overrides. Invalid values are normalized
// back to defaults; the returned warnings name each fallback taken.
func Load(path string) (*Config, []string, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s] // unknown variables map to "" and are dropped
	}), nil); err != nil {
		return nil, nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	warnings := cfg.Normalize()
	return cfg, warnings, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Normalize replaces invalid values with their defaults, returning one
// warning per field replaced. The proxy never refuses to start over a bad
// optional setting.
func (c *Config) Normalize() []string {
	var warnings []string
	def := DefaultConfig()

	fallbackInt := func(field string, v *int, min int, d int) {
		if *v < min {
			warnings = append(warnings, fmt.Sprintf("%s: invalid value %d, using %d", field, *v, d))
			*v = d
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		warnings = append(warnings, fmt.Sprintf("PORT: invalid value %d, using %d", c.Server.Port, def.Server.Port))
		c.Server.Port = def.Server.Port
	}
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}

	fallbackInt("HTTP_TIMEOUT", &c.HTTP.TimeoutSeconds, 1, def.HTTP.TimeoutSeconds)
	fallbackInt("HTTP_MAX_PAGE_SIZE", &c.HTTP.MaxPageSizeKB, 1, def.HTTP.MaxPageSizeKB)
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = def.HTTP.UserAgent
	}

	fallbackInt("IMAGE_MAX_SIZE", &c.Image.MaxSizeMB, 1, def.Image.MaxSizeMB)
	fallbackInt("IMAGE_MAX_SVG_SIZE", &c.Image.MaxSVGSizeKB, 1, def.Image.MaxSVGSizeKB)
	fallbackInt("IMAGE_SVG_TIMEOUT", &c.Image.SVGTimeoutSeconds, 1, def.Image.SVGTimeoutSeconds)
	fallbackInt("IMAGE_MAX_PIXELS", &c.Image.MaxPixels, 1, def.Image.MaxPixels)
	fallbackInt("IMAGE_MAX_DIMENSION", &c.Image.MaxDimension, 1, def.Image.MaxDimension)
	fallbackInt("IMAGE_MAX_PER_PAGE", &c.Image.MaxPerPage, 0, def.Image.MaxPerPage)
	fallbackInt("IMAGE_PROCESSING_TIMEOUT", &c.Image.TimeoutSeconds, 1, def.Image.TimeoutSeconds)
	if c.Image.DitherPriority != DitherQuality && c.Image.DitherPriority != DitherPerformance {
		warnings = append(warnings, fmt.Sprintf("IMAGE_DITHER_PRIORITY: invalid value %q, using %q", c.Image.DitherPriority, def.Image.DitherPriority))
		c.Image.DitherPriority = def.Image.DitherPriority
	}

	fallbackInt("SECURITY_MAX_REDIRECTS", &c.Security.MaxRedirects, 0, def.Security.MaxRedirects)
	fallbackInt("SECURITY_MAX_REQUESTS_PER_MIN", &c.Security.MaxRequestsPerMin, 1, def.Security.MaxRequestsPerMin)
	fallbackInt("SECURITY_MAX_REQUEST_SIZE", &c.Security.MaxRequestSizeMB, 1, def.Security.MaxRequestSizeMB)

	if !validLogLevels[c.Log.Level] {
		warnings = append(warnings, fmt.Sprintf("LOG_LEVEL: invalid value %q, using %q", c.Log.Level, def.Log.Level))
		c.Log.Level = def.Log.Level
	}

	return warnings
}
