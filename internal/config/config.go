// Package config loads pipeline configuration through viper.
//
// Quality thresholds that depend on the language pair (word-ratio band,
// glossary recall floor) are configuration, never constants: the shipped
// defaults are calibrated for EN→FR scientific prose and must be retuned
// for any other pair.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the translation pipeline.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Dirs     DirsConfig     `mapstructure:"dirs"`
	Data     DataConfig     `mapstructure:"data"`
	Langs    LanguageConfig `mapstructure:"languages"`
	Chunks   ChunkConfig    `mapstructure:"chunks"`
	Quality  QualityConfig  `mapstructure:"quality"`
	Session  SessionConfig  `mapstructure:"session"`
	Tokens   TokenConfig    `mapstructure:"tokens"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DirsConfig holds the document directories.
type DirsConfig struct {
	Cache     string `mapstructure:"cache"`     // cached source documents, one per article id
	Intake    string `mapstructure:"intake"`    // PDFs awaiting ingestion
	Processed string `mapstructure:"processed"` // ingested PDFs are moved here
}

// DataConfig points at the controlled vocabulary files.
type DataConfig struct {
	Taxonomy string `mapstructure:"taxonomy"`
	Glossary string `mapstructure:"glossary"`
}

// LanguageConfig is the translation language pair (ISO 639-1).
type LanguageConfig struct {
	Source string `mapstructure:"source"`
	Target string `mapstructure:"target"`
}

// ChunkConfig controls chunk sizing and delivery caching.
type ChunkConfig struct {
	TargetParagraphs  int           `mapstructure:"target_paragraphs"`
	MaxParagraphWords int           `mapstructure:"max_paragraph_words"`
	SplitAtWords      int           `mapstructure:"split_at_words"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

// QualityConfig holds the tunable quality-gate thresholds.
type QualityConfig struct {
	WordRatioMin  float64 `mapstructure:"word_ratio_min"`
	WordRatioMax  float64 `mapstructure:"word_ratio_max"`
	TermRecallMin float64 `mapstructure:"term_recall_min"`
	// TargetAbbreviations are target-language abbreviations the sentence
	// segmenter must treat as non-terminal (e.g. "p. ex.", "cf.").
	TargetAbbreviations []string `mapstructure:"target_abbreviations"`
}

// SessionConfig holds the human-review pacing defaults.
type SessionConfig struct {
	DefaultInterval int `mapstructure:"default_interval"`
}

// TokenConfig holds validation-token lifetimes.
type TokenConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads configuration from an optional file plus TRANSPIPE_* environment
// overrides. Pass an empty path to use defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRANSPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "data/transpipe.db")
	v.SetDefault("dirs.cache", "cache/articles")
	v.SetDefault("dirs.intake", "intake/articles")
	v.SetDefault("dirs.processed", "intake/processed")
	v.SetDefault("data.taxonomy", "data/taxonomy.yaml")
	v.SetDefault("data.glossary", "data/glossary.yaml")
	v.SetDefault("languages.source", "en")
	v.SetDefault("languages.target", "fr")
	v.SetDefault("chunks.target_paragraphs", 4)
	v.SetDefault("chunks.max_paragraph_words", 500)
	v.SetDefault("chunks.split_at_words", 400)
	v.SetDefault("chunks.cache_ttl", time.Hour)
	v.SetDefault("quality.word_ratio_min", 0.9)
	v.SetDefault("quality.word_ratio_max", 1.5)
	v.SetDefault("quality.term_recall_min", 0.7)
	v.SetDefault("quality.target_abbreviations", []string{"p. ex", "cf", "etc", "m", "mme", "dr"})
	v.SetDefault("session.default_interval", 5)
	v.SetDefault("tokens.ttl", 30*time.Minute)
	v.SetDefault("server.listen", ":8085")
}

func (c *Config) validate() error {
	if c.Quality.WordRatioMin <= 0 || c.Quality.WordRatioMax <= c.Quality.WordRatioMin {
		return fmt.Errorf("invalid word ratio band [%v, %v]", c.Quality.WordRatioMin, c.Quality.WordRatioMax)
	}
	if c.Quality.TermRecallMin < 0 || c.Quality.TermRecallMin > 1 {
		return fmt.Errorf("term recall threshold must be in [0, 1], got %v", c.Quality.TermRecallMin)
	}
	if c.Session.DefaultInterval < 1 || c.Session.DefaultInterval > 20 {
		return fmt.Errorf("review interval must be between 1 and 20, got %d", c.Session.DefaultInterval)
	}
	if c.Chunks.TargetParagraphs < 1 {
		return fmt.Errorf("chunks.target_paragraphs must be at least 1")
	}
	return nil
}
