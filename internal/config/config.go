package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MongoConfig struct {
	URI       string
	Database  string
	Users     string
	Progress  string
	OpTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	SessionSecret      string
	SessionTTL         time.Duration
	LoginAttemptLimit  int64
	LoginAttemptWindow time.Duration
	ResetTokenTTL      time.Duration
}

type SessionConfig struct {
	CookieName          string
	DebugCookieName     string
	GuardCookieName     string
	GuardTTL            time.Duration
	CookieSecure        bool
	RefreshThrottle     time.Duration
	PublicPaths         []string
	AuthOnlyPaths       []string
	CharacterPaths      []string
	CharacterSelectPath string
	LoginPath           string
	LandingPath         string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Mongo            MongoConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Session          SessionConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("GOTOGROW")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	v.SetDefault("mongo.database", "gotogrow")
	v.SetDefault("mongo.users", "users")
	v.SetDefault("mongo.progress", "progress")
	v.SetDefault("mongo.optimeout", "5s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.sessionttl", "720h") // 30 days
	v.SetDefault("security.loginattemptlimit", 10)
	v.SetDefault("security.loginattemptwindow", "15m")
	v.SetDefault("security.resettokenttl", "1h")

	v.SetDefault("session.cookiename", "gtg_session")
	v.SetDefault("session.debugcookiename", "gtg_session_debug")
	v.SetDefault("session.guardcookiename", "gtg_character_redirect")
	v.SetDefault("session.guardttl", "30s")
	v.SetDefault("session.cookiesecure", false)
	v.SetDefault("session.refreshthrottle", "5s")
	v.SetDefault("session.publicpaths", []string{"/", "/about", "/static", "/favicon.ico", "/api/healthz"})
	v.SetDefault("session.authonlypaths", []string{"/auth/login", "/auth/register", "/auth/forgot-password", "/auth/reset-password"})
	v.SetDefault("session.characterpaths", []string{"/dashboard", "/levels", "/play", "/profile"})
	v.SetDefault("session.characterselectpath", "/character/select")
	v.SetDefault("session.loginpath", "/auth/login")
	v.SetDefault("session.landingpath", "/dashboard")
}
