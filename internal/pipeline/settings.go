package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backends are the optional external services the pipeline may call.
type Backends struct {
	// TextExtractor is the base URL of the secondary word-extraction
	// service. Empty runs the primary engine alone.
	TextExtractor string `yaml:"text_extractor"`
	// TableDetector is the base URL of the structural table-detection
	// service. Empty leaves only the whitespace detector.
	TableDetector string `yaml:"table_detector"`
}

// Settings are the driver's own knobs, separate from the stage
// configuration document.
type Settings struct {
	OutputDir    string   `yaml:"output_dir"`
	ConfigPath   string   `yaml:"config_path"`
	SegmentsPath string   `yaml:"segments_path"`
	Backends     Backends `yaml:"backends"`
	LogLevel     string   `yaml:"log_level"`
}

// DefaultSettings returns the settings used when no file is supplied.
func DefaultSettings() *Settings {
	return &Settings{OutputDir: "out", LogLevel: "info"}
}

// LoadSettings reads a YAML settings file and applies environment
// overrides.
func LoadSettings(path string) (*Settings, error) {
	set := DefaultSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, set); err != nil {
			return nil, fmt.Errorf("parse settings: %w", err)
		}
	}
	set.applyEnv()
	return set, nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("PIPELINE_OUTPUT_DIR"); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv("PIPELINE_CONFIG"); v != "" {
		s.ConfigPath = v
	}
	if v := os.Getenv("PIPELINE_SEGMENTS"); v != "" {
		s.SegmentsPath = v
	}
	if v := os.Getenv("TEXT_EXTRACTOR_URL"); v != "" {
		s.Backends.TextExtractor = v
	}
	if v := os.Getenv("TABLE_DETECTOR_URL"); v != "" {
		s.Backends.TableDetector = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
}
