package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"sheetsync/internal/model"
)

// Storage kinds for the live sheet and the cache mirror.
const (
	KindSQLite  = "sqlite"
	KindJSON    = "json"
	KindBitable = "bitable"
)

// Notifier kinds.
const (
	NotifierWebhook = "webhook"
	NotifierLark    = "lark"
	NotifierNone    = "none"
)

type TableConfig struct {
	Kind     string `mapstructure:"kind"`
	Path     string `mapstructure:"path"`
	Sheet    string `mapstructure:"sheet"`
	AppToken string `mapstructure:"app_token"`
	TableID  string `mapstructure:"table_id"`
}

type NotifierConfig struct {
	Kind          string `mapstructure:"kind"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
	OnClassify    bool   `mapstructure:"on_classify"`
}

type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	ChatID    string `mapstructure:"chat_id"`
}

type TranslatorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	Source    string `mapstructure:"source"`
	Target    string `mapstructure:"target"`
	CacheSize int    `mapstructure:"cache_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DifyConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type Runtime struct {
	Classifier struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"classifier"`
	HTTP struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"http"`
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
	Timezone   string            `mapstructure:"timezone"`
	Schedule   string            `mapstructure:"schedule"`
	Live       TableConfig       `mapstructure:"live"`
	Cache      TableConfig       `mapstructure:"cache"`
	Notifier   NotifierConfig    `mapstructure:"notifier"`
	Lark       LarkConfig        `mapstructure:"lark"`
	Translator TranslatorConfig  `mapstructure:"translator"`
	Dify       DifyConfig        `mapstructure:"dify"`
	Columns    model.ColumnNames `mapstructure:"columns"`
	Log        LogConfig         `mapstructure:"log"`

	location *time.Location
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("classifier.url", "")
	v.SetDefault("timezone", "Asia/Tokyo")
	v.SetDefault("schedule", "*/5 * * * *")
	v.SetDefault("http.timeout", 30*time.Second)

	v.SetDefault("live.kind", KindSQLite)
	v.SetDefault("live.path", "./sheetsync.db")
	v.SetDefault("live.sheet", "live")
	v.SetDefault("live.app_token", "")
	v.SetDefault("live.table_id", "")
	v.SetDefault("cache.kind", KindSQLite)
	v.SetDefault("cache.path", "./sheetsync.db")
	v.SetDefault("cache.sheet", "cache")
	v.SetDefault("cache.app_token", "")
	v.SetDefault("cache.table_id", "")

	v.SetDefault("notifier.kind", NotifierWebhook)
	v.SetDefault("notifier.url", "https://notify-api.line.me/api/notify")
	v.SetDefault("notifier.token", "")
	v.SetDefault("notifier.rate_per_minute", 0)
	v.SetDefault("notifier.on_classify", false)

	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.chat_id", "")

	v.SetDefault("translator.enabled", false)
	v.SetDefault("translator.endpoint", "")
	v.SetDefault("translator.api_key", "")
	v.SetDefault("translator.source", "ja")
	v.SetDefault("translator.target", "en")
	v.SetDefault("translator.cache_size", 256)

	v.SetDefault("dify.base_url", "")
	v.SetDefault("dify.api_key", "")

	names := model.DefaultColumnNames()
	v.SetDefault("columns.name", names.Name)
	v.SetDefault("columns.start_date", names.StartDate)
	v.SetDefault("columns.end_date", names.EndDate)
	v.SetDefault("columns.remind_flag", names.RemindFlag)
	v.SetDefault("columns.input_text", names.InputText)
	v.SetDefault("columns.status", names.Status)
	v.SetDefault("columns.remind_status", names.RemindStatus)
	v.SetDefault("columns.input_date", names.InputDate)
	v.SetDefault("columns.duration", names.Duration)
	v.SetDefault("columns.translated_text", names.TranslatedText)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadRuntime reads defaults, then the optional YAML file at path, then
// SHEETSYNC_* environment variables (SHEETSYNC_LIVE_KIND for live.kind).
func LoadRuntime(path string) (Runtime, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("sheetsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Runtime{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Runtime
	if err := v.Unmarshal(&cfg); err != nil {
		return Runtime{}, fmt.Errorf("decode config: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Runtime{}, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc
	return cfg, nil
}

// Location is the zone sheet wall-clock times are read in.
func (c Runtime) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Validate checks the settings needed by the run and watch commands.
func (c Runtime) Validate() error {
	var errs []error
	if c.Classifier.URL == "" {
		errs = append(errs, errors.New("classifier.url must be set"))
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
	}
	errs = append(errs, c.validateTable("live", c.Live), c.validateTable("cache", c.Cache))
	if c.Live.Kind == c.Cache.Kind && c.Live.Kind != KindBitable && c.Live.Path == c.Cache.Path && (c.Live.Kind == KindJSON || c.Live.Sheet == c.Cache.Sheet) {
		errs = append(errs, errors.New("live and cache must not be the same table"))
	}
	switch c.Notifier.Kind {
	case NotifierWebhook:
		if c.Notifier.URL == "" || c.Notifier.Token == "" {
			errs = append(errs, errors.New("notifier.url and notifier.token must be set for the webhook notifier"))
		}
	case NotifierLark:
		if c.Lark.ChatID == "" {
			errs = append(errs, errors.New("lark.chat_id must be set for the lark notifier"))
		}
	case NotifierNone:
	default:
		errs = append(errs, fmt.Errorf("unknown notifier.kind %q", c.Notifier.Kind))
	}
	if c.Translator.Enabled && c.Translator.APIKey == "" {
		errs = append(errs, errors.New("translator.api_key must be set when translation is enabled"))
	}
	if c.needsLark() && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		errs = append(errs, errors.New("lark.app_id and lark.app_secret must be set"))
	}
	return errors.Join(errs...)
}

// ValidateServe checks the settings needed by the serve command.
func (c Runtime) ValidateServe() error {
	if c.Dify.APIKey == "" {
		return errors.New("dify.api_key must be set")
	}
	return nil
}

func (c Runtime) validateTable(name string, t TableConfig) error {
	switch t.Kind {
	case KindSQLite, KindJSON:
		if t.Path == "" {
			return fmt.Errorf("%s.path must be set", name)
		}
	case KindBitable:
		if t.AppToken == "" || t.TableID == "" {
			return fmt.Errorf("%s.app_token and %s.table_id must be set", name, name)
		}
	default:
		return fmt.Errorf("unknown %s.kind %q", name, t.Kind)
	}
	return nil
}

func (c Runtime) needsLark() bool {
	return c.Live.Kind == KindBitable || c.Cache.Kind == KindBitable || c.Notifier.Kind == NotifierLark
}
