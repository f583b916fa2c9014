package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/persist"
	"github.com/qjerry/dbroute/rule"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	PersistNone   = ""
	PersistMemory = "memory"
	PersistSQLite = "sqlite"
)

// Config dbroute 配置文件
type Config struct {
	Props     metadata.Props   `mapstructure:"props"`
	Logger    LoggerConfig     `mapstructure:"logger"`
	Persist   PersistConfig    `mapstructure:"persist"`
	Databases []DatabaseConfig `mapstructure:"databases"`
}

// LoggerConfig logger config
type LoggerConfig struct {
	// gorm | zap
	Type           string        `mapstructure:"type"`
	Level          string        `mapstructure:"level"`
	SlowThreshold  time.Duration `mapstructure:"slowThreshold"`
	Colorful       bool          `mapstructure:"colorful"`
	TraceRouteMode bool          `mapstructure:"traceRouteMode"`
}

// PersistConfig 规则持久化
type PersistConfig struct {
	Type string `mapstructure:"type"`
	// sqlite 文件
	Path string `mapstructure:"path"`
}

// DatabaseConfig logic database config
type DatabaseConfig struct {
	Name   string `mapstructure:"name"`
	DBType string `mapstructure:"dbType"`
	// 仅用于选择 dialector，不建立连接
	DSN         string      `mapstructure:"dsn"`
	DataSources []string    `mapstructure:"dataSources"`
	Tables      []string    `mapstructure:"tables"`
	Rules       RulesConfig `mapstructure:"rules"`
}

// RulesConfig 每种规则最多一个
type RulesConfig struct {
	Shadow    *rule.ShadowRuleConfiguration    `mapstructure:"shadow"`
	Sharding  *rule.ShardingRuleConfiguration  `mapstructure:"sharding"`
	Single    *rule.SingleRuleConfiguration    `mapstructure:"single"`
	Broadcast *rule.BroadcastRuleConfiguration `mapstructure:"broadcast"`
	Encrypt   *rule.EncryptRuleConfiguration   `mapstructure:"encrypt"`
	Mask      *rule.MaskRuleConfiguration      `mapstructure:"mask"`
}

// Configurations configured rules in priority order
func (r RulesConfig) Configurations() []rule.Configuration {
	var configs []rule.Configuration
	if r.Shadow != nil {
		configs = append(configs, r.Shadow)
	}
	if r.Sharding != nil {
		configs = append(configs, r.Sharding)
	}
	if r.Single != nil {
		configs = append(configs, r.Single)
	}
	if r.Broadcast != nil {
		configs = append(configs, r.Broadcast)
	}
	if r.Encrypt != nil {
		configs = append(configs, r.Encrypt)
	}
	if r.Mask != nil {
		configs = append(configs, r.Mask)
	}
	return configs
}

// Load reads the YAML config file at path
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("props.renameCardinalityReference", metadata.CardinalityRecorded)
	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.slowThreshold", 200*time.Millisecond)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config `%s`", path)
	}
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config `%s`", path)
	}
	return cfg, nil
}

// NewDBRoute
//
//	@Description: 按配置创建日志、持久化仓库并注册所有逻辑库；仓库中已有规则时以仓库为准
//	@param ctx
//	@param cfg
//	@return *dbroute.DBRoute
//	@return func() error 关闭路由及仓库
//	@return error
func NewDBRoute(ctx context.Context, cfg *Config) (*dbroute.DBRoute, func() error, error) {
	l, err := NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []dbroute.Option{dbroute.WithLogger(l), dbroute.WithProps(cfg.Props)}
	if cfg.Logger.TraceRouteMode {
		opts = append(opts, dbroute.WithTraceRouteMode())
	}

	repo, closeRepo, err := openRepository(ctx, cfg.Persist)
	if err != nil {
		return nil, nil, err
	}
	var service *persist.RuleService
	if repo != nil {
		service = persist.NewRuleService(repo)
		opts = append(opts, dbroute.WithListener(service))
	}

	dr := dbroute.New(opts...)
	closeFn := func() error {
		dr.Close()
		return closeRepo()
	}
	for _, db := range cfg.Databases {
		rules := db.Rules.Configurations()
		if service != nil {
			if rules, err = syncRules(ctx, service, db.Name, rules); err != nil {
				_ = closeFn()
				return nil, nil, err
			}
		}
		err = dr.Register(dbroute.DatabaseConfig{
			Name:        db.Name,
			Type:        metadata.ParseType(db.DBType),
			DataSources: db.DataSources,
			Tables:      db.Tables,
			Rules:       rules,
			Dialector:   openDialector(db),
		})
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
	}
	return dr, closeFn, nil
}

// syncRules stored rules win over configured ones, an empty store is seeded
func syncRules(ctx context.Context, service *persist.RuleService, database string, configured []rule.Configuration) ([]rule.Configuration, error) {
	stored, err := service.Load(ctx, database)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}
	return configured, service.Persist(ctx, database, configured...)
}

func openRepository(ctx context.Context, cfg PersistConfig) (persist.Repository, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(cfg.Type) {
	case PersistNone:
		return nil, noop, nil
	case PersistMemory:
		return persist.NewMemoryRepository(), noop, nil
	case PersistSQLite:
		repo, err := persist.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, errs.NewConfiguration("unknown persist type `%s`", cfg.Type)
	}
}

// openDialector nil without dsn, the database then uses the default dialector of its type
func openDialector(cfg DatabaseConfig) gorm.Dialector {
	if cfg.DSN == "" {
		return nil
	}
	var dialector gorm.Dialector
	switch metadata.ParseType(cfg.DBType) {
	case metadata.MySQL:
		dialector = mysql.Open(cfg.DSN)
	case metadata.PostgreSQL:
		dialector = postgres.Open(cfg.DSN)
	default:
	}
	return dialector
}

// NewLogger gorm 或 zap 日志
func NewLogger(cfg LoggerConfig) (logger.Interface, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Type) {
	case "zap":
		z, err := zap.NewProduction()
		if err != nil {
			return nil, errors.Wrap(err, "build zap logger")
		}
		return dbroute.NewZapLogger(z).LogMode(level), nil
	case "", "gorm":
		return logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
			logger.Config{
				SlowThreshold:             cfg.SlowThreshold,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  cfg.Colorful,
			},
		), nil
	default:
		return nil, errs.NewConfiguration("unknown logger type `%s`", cfg.Type)
	}
}

func parseLevel(s string) (logger.LogLevel, error) {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent, nil
	case "error":
		return logger.Error, nil
	case "", "warn":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	default:
		return 0, errs.NewConfiguration("unknown log level `%s`", s)
	}
}
