package config

// DefaultUserAgent is sent upstream unless overridden.
const DefaultUserAgent = "OpenXiino/1.0 (https://github.com/openxiino/dataserver)"

// DefaultConfig returns a Config with the documented defaults. Invalid
// overrides fall back to these values field by field.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 10,
			MaxPageSizeKB:  512,
			UserAgent:      DefaultUserAgent,
		},
		Image: ImageConfig{
			MaxSizeMB:         5,
			MaxSVGSizeKB:      1024,
			SVGTimeoutSeconds: 5,
			MaxPixels:         4_000_000,
			MaxDimension:      2048,
			MaxPerPage:        100,
			TimeoutSeconds:    30,
			DitherPriority:    DitherQuality,
		},
		Security: SecurityConfig{
			AttemptHTTPSUpgrade: true,
			AllowRedirects:      true,
			MaxRedirects:        10,
			MaxRequestsPerMin:   60,
			MaxRequestSizeMB:    10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
