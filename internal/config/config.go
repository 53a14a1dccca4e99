// Package config loads scanner settings from defaults, an optional config
// file and SIGSCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"sigscan/internal/errs"
	"sigscan/internal/match"
	"sigscan/internal/ocr"
	"sigscan/internal/region"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIGSCAN"

// Detection modes.
const (
	ModeAuto  = "auto"
	ModeRing  = "ring"
	ModeCross = "cross"
)

// Config is the complete scanner configuration.
type Config struct {
	Database  string          `mapstructure:"database"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Detection DetectionConfig `mapstructure:"detection"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Matching  match.Rules     `mapstructure:"matching"`
	Debug     DebugConfig     `mapstructure:"debug"`
	Watch     WatchConfig     `mapstructure:"watch"`

	// Source is the config file that was read, empty on defaults.
	Source string `mapstructure:"-"`
}

// PricingConfig locates the composition and price tables.
type PricingConfig struct {
	RockTypes     string  `mapstructure:"rock_types"`
	Prices        string  `mapstructure:"prices"`
	System        string  `mapstructure:"system"`
	RefineryYield float64 `mapstructure:"refinery_yield"`
	// MaxAge marks older price caches as stale.
	MaxAge time.Duration `mapstructure:"max_age"`
	// RefreshInterval reloads the tables periodically in watch mode. Zero
	// disables reloading.
	RefreshInterval time.Duration      `mapstructure:"refresh_interval"`
	Densities       map[string]float64 `mapstructure:"densities"`
}

// Calibration is a user-calibrated reticle position.
type Calibration struct {
	CircleX        float64 `mapstructure:"circle_x"`
	CircleY        float64 `mapstructure:"circle_y"`
	CircleDiameter float64 `mapstructure:"circle_diameter"`
}

// DetectionConfig selects how the readout is located.
type DetectionConfig struct {
	Mode        string         `mapstructure:"mode"`
	FixedRegion *region.Region `mapstructure:"fixed_region"`
	Calibration *Calibration   `mapstructure:"calibration"`

	region.Params `mapstructure:",squash"`
}

// OCRConfig configures the OCR backend and signature extraction.
type OCRConfig struct {
	Language       string   `mapstructure:"language"`
	TessdataPrefix string   `mapstructure:"tessdata_prefix"`
	Strategies     []string `mapstructure:"strategies"`
	Upscale        int      `mapstructure:"upscale"`
	MinSignature   int      `mapstructure:"min_signature"`
	MaxSignature   int      `mapstructure:"max_signature"`
}

// DebugConfig controls debug artifacts.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// WatchConfig configures folder watching.
type WatchConfig struct {
	Dir            string        `mapstructure:"dir"`
	Settle         time.Duration `mapstructure:"settle"`
	SkipDuplicates bool          `mapstructure:"skip_duplicates"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database", "signatures.json")

	v.SetDefault("pricing.rock_types", "rock_types.json")
	v.SetDefault("pricing.prices", "prices.json")
	v.SetDefault("pricing.system", "STANTON")
	v.SetDefault("pricing.refinery_yield", 0.5)
	v.SetDefault("pricing.max_age", 30*time.Minute)
	v.SetDefault("pricing.refresh_interval", time.Duration(0))

	rp := region.DefaultParams()
	v.SetDefault("detection.mode", ModeAuto)
	v.SetDefault("detection.offset_x_mult", rp.OffsetXMult)
	v.SetDefault("detection.offset_y_mult", rp.OffsetYMult)
	v.SetDefault("detection.padding_x_mult", rp.PaddingXMult)
	v.SetDefault("detection.padding_y_mult", rp.PaddingYMult)
	v.SetDefault("detection.min_rotation", rp.MinRotation)

	ex := ocr.DefaultExtractor()
	strategies := make([]string, len(ocr.DefaultStrategies))
	for i, s := range ocr.DefaultStrategies {
		strategies[i] = string(s)
	}
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.tessdata_prefix", "")
	v.SetDefault("ocr.strategies", strategies)
	v.SetDefault("ocr.upscale", ocr.DefaultNormalizeParams().Upscale)
	v.SetDefault("ocr.min_signature", ex.Min)
	v.SetDefault("ocr.max_signature", ex.Max)

	rules := match.DefaultRules()
	v.SetDefault("matching.salvage_unit", rules.SalvageUnit)
	for key, r := range map[string]match.UnitRule{
		"ground_small": rules.GroundSmall,
		"ground_large": rules.GroundLarge,
		"deposit":      rules.Deposit,
	} {
		v.SetDefault("matching."+key+".base", r.Base)
		v.SetDefault("matching."+key+".min_count", r.MinCount)
		v.SetDefault("matching."+key+".max_count", r.MaxCount)
		v.SetDefault("matching."+key+".start", r.Start)
		v.SetDefault("matching."+key+".decay", r.Decay)
	}

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.dir", "SignatureScannerBugreport")

	v.SetDefault("watch.dir", "")
	v.SetDefault("watch.settle", 200*time.Millisecond)
	v.SetDefault("watch.skip_duplicates", false)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := load(viper.New(), "", false)
	if err != nil {
		// Defaults are static and always decode.
		panic(err)
	}
	return cfg
}

// Load reads the configuration. With an empty path it looks for an optional
// sigscan.{yaml,json,toml} in the working directory and the user config
// directory. Errors are errs.CodeConfig.
func Load(path string) (*Config, error) {
	return load(viper.New(), path, true)
}

func load(v *viper.Viper, path string, search bool) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default, so AutomaticEnv alone would never surface it.
	_ = v.BindEnv("detection.fixed_region")

	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(err, errs.CodeConfig, "failed to read config").With("path", path)
		}
	case search:
		v.SetConfigName("sigscan")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "sigscan"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errs.Wrap(err, errs.CodeConfig, "failed to read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		regionHook,
	))); err != nil {
		return nil, errs.Wrap(err, errs.CodeConfig, "failed to decode config")
	}
	cfg.Source = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enums.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errs.Newf(errs.CodeConfig, format, args...)
	}

	switch c.Detection.Mode {
	case ModeAuto, ModeRing, ModeCross:
	default:
		return bad("detection.mode must be auto, ring or cross, got %q", c.Detection.Mode)
	}
	if r := c.Detection.FixedRegion; r != nil && r.Empty() {
		return bad("detection.fixed_region %s is empty", r)
	}
	if cal := c.Detection.Calibration; cal != nil && cal.CircleDiameter <= 0 {
		return bad("detection.calibration.circle_diameter must be positive")
	}
	if c.Detection.PaddingXMult <= 0 || c.Detection.PaddingYMult <= 0 {
		return bad("detection padding multipliers must be positive")
	}

	if c.OCR.MinSignature <= 0 || c.OCR.MaxSignature < c.OCR.MinSignature {
		return bad("ocr signature range [%d,%d] is invalid", c.OCR.MinSignature, c.OCR.MaxSignature)
	}
	if c.OCR.Upscale < 1 {
		return bad("ocr.upscale must be at least 1, got %d", c.OCR.Upscale)
	}
	if _, err := c.Strategies(); err != nil {
		return errs.Wrap(err, errs.CodeConfig, "invalid ocr.strategies")
	}

	if err := c.Matching.Validate(); err != nil {
		return errs.Wrap(err, errs.CodeConfig, "invalid matching rules")
	}

	if c.Pricing.RefineryYield < 0 || c.Pricing.RefineryYield > 1 {
		return bad("pricing.refinery_yield must be within [0,1], got %.3f", c.Pricing.RefineryYield)
	}
	if c.Watch.Settle < 0 {
		return bad("watch.settle must not be negative")
	}
	return nil
}

// Strategies parses the OCR strategy list.
func (c *Config) Strategies() ([]ocr.Strategy, error) {
	if len(c.OCR.Strategies) == 0 {
		return nil, fmt.Errorf("no strategies configured")
	}
	out := make([]ocr.Strategy, 0, len(c.OCR.Strategies))
	for _, s := range c.OCR.Strategies {
		st, err := ocr.ParseStrategy(s)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Extractor returns the configured signature range.
func (c *Config) Extractor() ocr.Extractor {
	return ocr.Extractor{Min: c.OCR.MinSignature, Max: c.OCR.MaxSignature}
}

// NormalizeParams returns the normalizer settings.
func (c *Config) NormalizeParams() ocr.NormalizeParams {
	p := ocr.DefaultNormalizeParams()
	p.Upscale = c.OCR.Upscale
	return p
}

// TesseractOptions returns the OCR backend settings.
func (c *Config) TesseractOptions() ocr.TesseractOptions {
	o := ocr.DefaultTesseractOptions()
	o.Language = c.OCR.Language
	o.TessdataPrefix = c.OCR.TessdataPrefix
	return o
}

// regionHook lets a region be written as "x1,y1,x2,y2" as well as a map.
func regionHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(region.Region{}) {
		return data, nil
	}
	return ParseRegion(data.(string))
}

// ParseRegion parses "x1,y1,x2,y2".
func ParseRegion(s string) (region.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return region.Region{}, errs.Newf(errs.CodeConfig, "region %q must be x1,y1,x2,y2", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return region.Region{}, errs.Wrapf(err, errs.CodeConfig, "region %q", s)
		}
		v[i] = n
	}
	r := region.Region{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	if r.Empty() {
		return r, errs.Newf(errs.CodeConfig, "region %s is empty", r)
	}
	return r, nil
}
