package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gliderkmz/internal/kml"
)

type Config struct {
	API            APIConfig     `yaml:"api"`
	Gliders        []string      `yaml:"gliders"`
	Sensors        []string      `yaml:"sensors"`
	ThresholdsPath string        `yaml:"thresholds_path"`
	KML            KMLConfig     `yaml:"kml"`
	Refresh        RefreshConfig `yaml:"refresh"`
	Web            WebConfig     `yaml:"web"`
}

type APIConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type KMLConfig struct {
	// Type selects the track rendering: "deployed" draws one line,
	// "deployed_ts" draws time-stamped segments.
	Type         string        `yaml:"type"`
	Output       string        `yaml:"output"`
	GliderTails  string        `yaml:"glider_tails"`
	Colors       []string      `yaml:"colors"`
	RecentWindow time.Duration `yaml:"recent_window"`
	// TemplatesDir optionally holds *.kml.tmpl files that replace the
	// built-in template definitions of the same name.
	TemplatesDir string `yaml:"templates_dir"`
}

type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

const (
	KMLTypeDeployed   = kml.TypeDeployed
	KMLTypeDeployedTS = kml.TypeDeployedTS
)

// DefaultColors is a colour-blind friendly cycle in KML aabbggrr order:
// teal, pink, purple, yellow, orange, green, gray.
var DefaultColors = []string{"ffe9d043", "ff9e36d7", "ffd7369e", "ff43d0e9", "ff3877f3", "ff83c995", "ffc4c9d8"}

var kmlColorRe = regexp.MustCompile(`^[0-9a-fA-F]{8}$`)

// Load reads a YAML config, applies defaults and validates it. Relative
// paths are resolved against the config file's directory.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}

	base := filepath.Dir(path)
	cfg.ThresholdsPath = resolvePath(base, cfg.ThresholdsPath)
	cfg.KML.Output = resolvePath(base, cfg.KML.Output)
	cfg.KML.TemplatesDir = resolvePath(base, cfg.KML.TemplatesDir)
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects invalid settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.API.BaseURL = strings.TrimSpace(cfg.API.BaseURL)
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL")
	}
	if !strings.HasSuffix(cfg.API.BaseURL, "/") {
		cfg.API.BaseURL += "/"
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.API.MaxConcurrent <= 0 {
		cfg.API.MaxConcurrent = 4
	}

	for i, g := range cfg.Gliders {
		g = strings.TrimSpace(g)
		if g == "" {
			return fmt.Errorf("gliders[%d] must not be empty", i)
		}
		cfg.Gliders[i] = g
	}

	if len(cfg.Sensors) == 0 {
		cfg.Sensors = []string{"m_battery", "m_vacuum"}
	}
	seen := make(map[string]bool, len(cfg.Sensors))
	for i, s := range cfg.Sensors {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("sensors[%d] must not be empty", i)
		}
		if seen[s] {
			return fmt.Errorf("sensors contains duplicate %q", s)
		}
		seen[s] = true
		cfg.Sensors[i] = s
	}

	if strings.TrimSpace(cfg.ThresholdsPath) == "" {
		return fmt.Errorf("thresholds_path is required")
	}

	switch cfg.KML.Type {
	case "":
		cfg.KML.Type = KMLTypeDeployedTS
	case KMLTypeDeployed, KMLTypeDeployedTS:
	case "deployed_uv", "deployed_ts_uv":
		return fmt.Errorf("kml.type %q needs depth-averaged currents, which are not computed", cfg.KML.Type)
	default:
		return fmt.Errorf("kml.type must be one of: %s, %s", KMLTypeDeployed, KMLTypeDeployedTS)
	}
	if strings.TrimSpace(cfg.KML.Output) == "" {
		cfg.KML.Output = "active_deployments.kml"
	}
	switch strings.ToLower(filepath.Ext(cfg.KML.Output)) {
	case ".kml", ".kmz":
	default:
		return fmt.Errorf("kml.output must end in .kml or .kmz")
	}
	if cfg.KML.GliderTails == "" {
		cfg.KML.GliderTails = "https://rucool.marine.rutgers.edu/gliders/glider_tails/"
	}
	if !strings.HasSuffix(cfg.KML.GliderTails, "/") {
		cfg.KML.GliderTails += "/"
	}
	if len(cfg.KML.Colors) == 0 {
		cfg.KML.Colors = append([]string(nil), DefaultColors...)
	}
	for i, c := range cfg.KML.Colors {
		if !kmlColorRe.MatchString(c) {
			return fmt.Errorf("kml.colors[%d] must be 8 hex digits (aabbggrr)", i)
		}
		cfg.KML.Colors[i] = strings.ToLower(c)
	}
	cfg.KML.TemplatesDir = strings.TrimSpace(cfg.KML.TemplatesDir)
	if cfg.KML.RecentWindow <= 0 {
		cfg.KML.RecentWindow = 24 * time.Hour
	}

	if cfg.Refresh.Interval <= 0 {
		cfg.Refresh.Interval = 10 * time.Minute
	}
	if cfg.Refresh.Interval < 10*time.Second {
		return fmt.Errorf("refresh.interval must be >= 10s")
	}

	if cfg.Web.Enable && strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}
	return nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
