package config

import "time"

// DitherPriority selects the quantization trade-off.
type DitherPriority string

const (
	DitherQuality     DitherPriority = "quality"
	DitherPerformance DitherPriority = "performance"
)

// Config is the top-level proxy configuration, corresponding to xiino.yml
// plus flat environment overrides.
type Config struct {
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	HTTP     HTTPConfig     `yaml:"http" koanf:"http"`
	Image    ImageConfig    `yaml:"image" koanf:"image"`
	Security SecurityConfig `yaml:"security" koanf:"security"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
	Cookies  CookieConfig   `yaml:"cookies" koanf:"cookies"`
}

// ServerConfig holds the downstream listener settings.
type ServerConfig struct {
	Host string `yaml:"host" koanf:"host"`
	Port int    `yaml:"port" koanf:"port"`
}

// HTTPConfig holds upstream fetch settings.
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" koanf:"timeout_seconds"`
	MaxPageSizeKB  int    `yaml:"max_page_size_kb" koanf:"max_page_size_kb"`
	UserAgent      string `yaml:"user_agent" koanf:"user_agent"`
	SocksProxy     string `yaml:"socks_proxy" koanf:"socks_proxy"`
}

// ImageConfig holds the image pipeline caps.
type ImageConfig struct {
	MaxSizeMB         int            `yaml:"max_size_mb" koanf:"max_size_mb"`
	MaxSVGSizeKB      int            `yaml:"max_svg_size_kb" koanf:"max_svg_size_kb"`
	SVGTimeoutSeconds int            `yaml:"svg_timeout_seconds" koanf:"svg_timeout_seconds"`
	MaxPixels         int            `yaml:"max_pixels" koanf:"max_pixels"`
	MaxDimension      int            `yaml:"max_dimension" koanf:"max_dimension"`
	MaxPerPage        int            `yaml:"max_per_page" koanf:"max_per_page"`
	TimeoutSeconds    int            `yaml:"timeout_seconds" koanf:"timeout_seconds"`
	DitherPriority    DitherPriority `yaml:"dither_priority" koanf:"dither_priority"`
	EBDCompress       bool           `yaml:"ebd_compress" koanf:"ebd_compress"`
}

// SecurityConfig holds request policing settings.
type SecurityConfig struct {
	AttemptHTTPSUpgrade bool `yaml:"attempt_https_upgrade" koanf:"attempt_https_upgrade"`
	AllowRedirects      bool `yaml:"allow_redirects" koanf:"allow_redirects"`
	MaxRedirects        int  `yaml:"max_redirects" koanf:"max_redirects"`
	MaxRequestsPerMin   int  `yaml:"max_requests_per_min" koanf:"max_requests_per_min"`
	MaxRequestSizeMB    int  `yaml:"max_request_size_mb" koanf:"max_request_size_mb"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
	File  string `yaml:"file" koanf:"file"`
}

// CookieConfig holds cookie jar settings.
type CookieConfig struct {
	// DBPath enables SQLite persistence of session jars when set.
	DBPath string `yaml:"db_path" koanf:"db_path"`
}

// HTTPTimeout returns the upstream fetch timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MaxPageBytes returns the page-weight cap in bytes.
func (c *Config) MaxPageBytes() int {
	return c.HTTP.MaxPageSizeKB * 1024
}

// MaxImageBytes returns the raster admission cap in bytes.
func (c *Config) MaxImageBytes() int {
	return c.Image.MaxSizeMB * 1024 * 1024
}

// MaxSVGBytes returns the SVG admission cap in bytes.
func (c *Config) MaxSVGBytes() int {
	return c.Image.MaxSVGSizeKB * 1024
}

// SVGTimeout returns the hard rasterization cap.
func (c *Config) SVGTimeout() time.Duration {
	return time.Duration(c.Image.SVGTimeoutSeconds) * time.Second
}

// ImageTimeout returns the per-image processing cap.
func (c *Config) ImageTimeout() time.Duration {
	return time.Duration(c.Image.TimeoutSeconds) * time.Second
}

// MaxRequestBytes returns the client request body cap in bytes.
func (c *Config) MaxRequestBytes() int64 {
	return int64(c.Security.MaxRequestSizeMB) * 1024 * 1024
}
