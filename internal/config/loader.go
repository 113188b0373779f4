package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"jordanella.com/linemod/internal/cv"
	"jordanella.com/linemod/internal/detection"
	"jordanella.com/linemod/internal/logging"
)

// Config is the full runtime configuration of the detector tools
type Config struct {
	// [detector]
	Threshold                float64
	MaxColorRows             int
	SpreadT                  []int
	ColorFeatures            int
	DepthFeatures            int
	WeakThreshold            float64
	StrongThreshold          float64
	DepthDistanceThreshold   int
	DepthDifferenceThreshold int
	DepthExtractThreshold    int
	FocalLength              float64
	SeedThreshold            float64
	Workers                  int

	// [database]
	DatabasePath string

	// [templates]
	TemplatesDir string
	FramesDir    string

	// [server]
	ServerEnabled bool
	ServerAddr    string

	// [logging]
	LogLevel  string
	LogFormat string // text or json
}

// Default returns the configuration used when no file is given
func Default() *Config {
	match := cv.DefaultMatchConfig()
	return &Config{
		Threshold:                90,
		MaxColorRows:             detection.DefaultMaxColorRows,
		SpreadT:                  match.SpreadT,
		ColorFeatures:            match.ColorFeatures,
		DepthFeatures:            match.DepthFeatures,
		WeakThreshold:            float64(match.WeakThreshold),
		StrongThreshold:          float64(match.StrongThreshold),
		DepthDistanceThreshold:   match.DepthDistanceThreshold,
		DepthDifferenceThreshold: match.DepthDifferenceThreshold,
		DepthExtractThreshold:    match.DepthExtractThreshold,
		FocalLength:              match.FocalLength,
		SeedThreshold:            match.SeedThreshold,
		Workers:                  match.Workers,
		DatabasePath:             "data/models.db",
		TemplatesDir:             "objects",
		FramesDir:                "frames",
		ServerEnabled:            false,
		ServerAddr:               ":8080",
		LogLevel:                 "INFO",
		LogFormat:                "text",
	}
}

// LoadFromINI loads configuration from an ini file. Missing keys keep their
// defaults.
func LoadFromINI(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	def := Default()
	config := &Config{}

	detector := file.Section("detector")
	config.Threshold = detector.Key("threshold").MustFloat64(def.Threshold)
	config.MaxColorRows = detector.Key("max_color_rows").MustInt(def.MaxColorRows)
	config.ColorFeatures = detector.Key("color_features").MustInt(def.ColorFeatures)
	config.DepthFeatures = detector.Key("depth_features").MustInt(def.DepthFeatures)
	config.WeakThreshold = detector.Key("weak_threshold").MustFloat64(def.WeakThreshold)
	config.StrongThreshold = detector.Key("strong_threshold").MustFloat64(def.StrongThreshold)
	config.DepthDistanceThreshold = detector.Key("depth_distance").MustInt(def.DepthDistanceThreshold)
	config.DepthDifferenceThreshold = detector.Key("depth_difference").MustInt(def.DepthDifferenceThreshold)
	config.DepthExtractThreshold = detector.Key("depth_extract").MustInt(def.DepthExtractThreshold)
	config.FocalLength = detector.Key("focal_length").MustFloat64(def.FocalLength)
	config.SeedThreshold = detector.Key("seed_threshold").MustFloat64(def.SeedThreshold)
	config.Workers = detector.Key("workers").MustInt(def.Workers)

	config.SpreadT = def.SpreadT
	if detector.HasKey("spread_t") {
		spread, err := parseSpread(detector.Key("spread_t").String())
		if err != nil {
			return nil, err
		}
		config.SpreadT = spread
	}

	config.DatabasePath = file.Section("database").Key("path").MustString(def.DatabasePath)

	templates := file.Section("templates")
	config.TemplatesDir = templates.Key("dir").MustString(def.TemplatesDir)
	config.FramesDir = templates.Key("frames_dir").MustString(def.FramesDir)

	server := file.Section("server")
	config.ServerEnabled = server.Key("enabled").MustBool(def.ServerEnabled)
	config.ServerAddr = server.Key("addr").MustString(def.ServerAddr)

	logs := file.Section("logging")
	config.LogLevel = logs.Key("level").MustString(def.LogLevel)
	config.LogFormat = logs.Key("format").MustString(def.LogFormat)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// parseSpread reads a comma-separated list such as "5,8"
func parseSpread(s string) ([]int, error) {
	var spread []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid spread_t %q: %w", s, err)
		}
		spread = append(spread, t)
	}
	return spread, nil
}

// Validate checks the settings that cannot be deferred to the detector
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("threshold must be within [0, 100], got %v", c.Threshold)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return c.MatchConfig().Validate()
}

// MatchConfig builds the matcher settings
func (c *Config) MatchConfig() *cv.MatchConfig {
	return cv.NewMatchConfig(
		cv.WithSpread(c.SpreadT...),
		cv.WithFeatures(c.ColorFeatures, c.DepthFeatures),
		cv.WithGradientThresholds(float32(c.WeakThreshold), float32(c.StrongThreshold)),
		cv.WithFocalLength(c.FocalLength),
		cv.WithSeedThreshold(c.SeedThreshold),
		cv.WithWorkers(c.Workers),
		func(m *cv.MatchConfig) {
			m.DepthDistanceThreshold = c.DepthDistanceThreshold
			m.DepthDifferenceThreshold = c.DepthDifferenceThreshold
			m.DepthExtractThreshold = c.DepthExtractThreshold
		},
	)
}

// DetectionConfig builds the session settings
func (c *Config) DetectionConfig() detection.Config {
	return detection.Config{
		Threshold:    c.Threshold,
		MaxColorRows: c.MaxColorRows,
		Match:        c.MatchConfig(),
	}
}

// Logger creates the root logger described by the [logging] section
func (c *Config) Logger(component string) *logging.Logger {
	logger := logging.NewLogger(component)
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		logger.SetMinLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logging.JSONFormatter{})
	}
	return logger
}

// SaveToINI writes the configuration to an ini file
func SaveToINI(config *Config, path string) error {
	file := ini.Empty()

	detector := file.Section("detector")
	detector.Key("threshold").SetValue(strconv.FormatFloat(config.Threshold, 'g', -1, 64))
	detector.Key("max_color_rows").SetValue(strconv.Itoa(config.MaxColorRows))
	spread := make([]string, len(config.SpreadT))
	for i, t := range config.SpreadT {
		spread[i] = strconv.Itoa(t)
	}
	detector.Key("spread_t").SetValue(strings.Join(spread, ","))
	detector.Key("color_features").SetValue(strconv.Itoa(config.ColorFeatures))
	detector.Key("depth_features").SetValue(strconv.Itoa(config.DepthFeatures))
	detector.Key("weak_threshold").SetValue(strconv.FormatFloat(config.WeakThreshold, 'g', -1, 64))
	detector.Key("strong_threshold").SetValue(strconv.FormatFloat(config.StrongThreshold, 'g', -1, 64))
	detector.Key("depth_distance").SetValue(strconv.Itoa(config.DepthDistanceThreshold))
	detector.Key("depth_difference").SetValue(strconv.Itoa(config.DepthDifferenceThreshold))
	detector.Key("depth_extract").SetValue(strconv.Itoa(config.DepthExtractThreshold))
	detector.Key("focal_length").SetValue(strconv.FormatFloat(config.FocalLength, 'g', -1, 64))
	detector.Key("seed_threshold").SetValue(strconv.FormatFloat(config.SeedThreshold, 'g', -1, 64))
	detector.Key("workers").SetValue(strconv.Itoa(config.Workers))

	file.Section("database").Key("path").SetValue(config.DatabasePath)

	templates := file.Section("templates")
	templates.Key("dir").SetValue(config.TemplatesDir)
	templates.Key("frames_dir").SetValue(config.FramesDir)

	server := file.Section("server")
	server.Key("enabled").SetValue(strconv.FormatBool(config.ServerEnabled))
	server.Key("addr").SetValue(config.ServerAddr)

	logs := file.Section("logging")
	logs.Key("level").SetValue(config.LogLevel)
	logs.Key("format").SetValue(config.LogFormat)

	return file.SaveTo(path)
}
