package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/parcel-sampler/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Spatial    SpatialConfig    `yaml:"spatial" mapstructure:"spatial"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Boundary   BoundaryConfig   `yaml:"boundary" mapstructure:"boundary"`
}

// ExtractionConfig holds the run targets and selection rules.
type ExtractionConfig struct {
	TotalTarget          int     `yaml:"total_target" mapstructure:"total_target"`
	PublicPaymentTarget  int     `yaml:"public_payment_target" mapstructure:"public_payment_target"`
	RepresentativeTarget int     `yaml:"representative_target" mapstructure:"representative_target"`
	PerRiTarget          int     `yaml:"per_ri_target" mapstructure:"per_ri_target"`
	MinPerFarmer         int     `yaml:"min_per_farmer" mapstructure:"min_per_farmer"`
	MaxPerFarmer         int     `yaml:"max_per_farmer" mapstructure:"max_per_farmer"`
	Method               string  `yaml:"method" mapstructure:"method"`
	Underfill            string  `yaml:"underfill" mapstructure:"underfill"`
	MinAreaSqm           float64 `yaml:"min_area_sqm" mapstructure:"min_area_sqm"`
	RebalanceCategories  bool    `yaml:"rebalance_categories" mapstructure:"rebalance_categories"`
	Seed                 int64   `yaml:"seed" mapstructure:"seed"` // negative = clock
	PlanPath             string  `yaml:"plan" mapstructure:"plan"`
}

// SpatialConfig controls density-aware selection.
type SpatialConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxRiDistanceKm     float64 `yaml:"max_ri_distance_km" mapstructure:"max_ri_distance_km"`
	MaxParcelDistanceKm float64 `yaml:"max_parcel_distance_km" mapstructure:"max_parcel_distance_km"`
	DensityWeight       float64 `yaml:"density_weight" mapstructure:"density_weight"`
}

// CacheConfig locates the coordinate cache database.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BoundaryConfig locates the region boundary shapefile.
type BoundaryConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	KeyField string `yaml:"key_field" mapstructure:"key_field"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SAMPLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("extraction.total_target", model.DefaultTotalTarget)
	v.SetDefault("extraction.public_payment_target", 0)
	v.SetDefault("extraction.representative_target", 0)
	v.SetDefault("extraction.per_ri_target", model.DefaultPerRiTarget)
	v.SetDefault("extraction.min_per_farmer", model.DefaultMinPerFarmer)
	v.SetDefault("extraction.max_per_farmer", model.DefaultMaxPerFarmer)
	v.SetDefault("extraction.method", string(model.MethodRandom))
	v.SetDefault("extraction.underfill", string(model.UnderfillSupplement))
	v.SetDefault("extraction.min_area_sqm", model.DefaultMinAreaSqm)
	v.SetDefault("extraction.rebalance_categories", false)
	v.SetDefault("extraction.seed", -1)
	v.SetDefault("extraction.plan", "")
	v.SetDefault("spatial.enabled", false)
	v.SetDefault("spatial.max_ri_distance_km", 0.0)
	v.SetDefault("spatial.max_parcel_distance_km", model.DefaultMaxParcelDistanceKm)
	v.SetDefault("spatial.density_weight", model.DefaultDensityWeight)
	v.SetDefault("cache.path", "")
	v.SetDefault("boundary.path", "")
	v.SetDefault("boundary.key_field", "RI_NM")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	e := c.Extraction
	if e.TotalTarget < 0 {
		problems = append(problems, "extraction.total_target must be >= 0")
	}
	if e.PerRiTarget < 0 {
		problems = append(problems, "extraction.per_ri_target must be >= 0")
	}
	if e.MinPerFarmer < 1 {
		problems = append(problems, "extraction.min_per_farmer must be >= 1")
	}
	if e.MaxPerFarmer < e.MinPerFarmer {
		problems = append(problems, "extraction.max_per_farmer must be >= min_per_farmer")
	}
	switch model.ExtractionMethod(e.Method) {
	case model.MethodRandom, model.MethodArea, model.MethodFarmer:
	default:
		problems = append(problems, "extraction.method must be one of random, area, farmer")
	}
	switch model.UnderfillPolicy(e.Underfill) {
	case model.UnderfillSupplement, model.UnderfillSkip:
	default:
		problems = append(problems, "extraction.underfill must be supplement or skip")
	}
	if e.Seed > int64(^uint32(0)) {
		problems = append(problems, "extraction.seed must fit in 32 bits")
	}
	if c.Spatial.DensityWeight < 0 || c.Spatial.DensityWeight > 1 {
		problems = append(problems, "spatial.density_weight must be between 0 and 1")
	}
	if c.Spatial.MaxRiDistanceKm < 0 || c.Spatial.MaxParcelDistanceKm < 0 {
		problems = append(problems, "spatial distances must be >= 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ToExtractionConfig converts the loaded settings into the engine's config.
func (c *Config) ToExtractionConfig() model.ExtractionConfig {
	e := c.Extraction
	out := model.ExtractionConfig{
		TotalTarget:          e.TotalTarget,
		PublicPaymentTarget:  e.PublicPaymentTarget,
		RepresentativeTarget: e.RepresentativeTarget,
		PerRiTarget:          e.PerRiTarget,
		MinPerFarmer:         e.MinPerFarmer,
		MaxPerFarmer:         e.MaxPerFarmer,
		Method:               model.ExtractionMethod(e.Method),
		Underfill:            model.UnderfillPolicy(e.Underfill),
		MinAreaSqm:           e.MinAreaSqm,
		RebalanceCategories:  e.RebalanceCategories,
		Spatial: &model.SpatialConfig{
			EnableSpatialFilter: c.Spatial.Enabled,
			MaxRiDistanceKm:     c.Spatial.MaxRiDistanceKm,
			MaxParcelDistanceKm: c.Spatial.MaxParcelDistanceKm,
			DensityWeight:       c.Spatial.DensityWeight,
		},
	}
	if e.Seed >= 0 && e.Seed <= int64(^uint32(0)) {
		seed := uint32(e.Seed)
		out.Seed = &seed
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
