// Package conf loads the application configuration from a yaml file and
// the environment. Environment variables use the PAGEGRAPH_ prefix with
// underscores for nesting, e.g. PAGEGRAPH_SERVER_PORT.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pagegraph/pagegraph/internal/auth"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/server"
)

// Config is the root application configuration.
type Config struct {
	Server server.Config     `conf:"server" yaml:"server" json:"server"`
	Log    log.Config        `conf:"log"    yaml:"log"    json:"log"`
	Auth   auth.Config       `conf:"auth"   yaml:"auth"   json:"auth"`
	Store  graph.StoreConfig `conf:"store"  yaml:"store"  json:"store"`
}

// defaults registers every key with a default so environment overrides
// are visible during unmarshalling.
func defaults(v *viper.Viper) {
	v.SetDefault("server.name", "pagegraph")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.cors.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")

	v.SetDefault("auth.superuser_name", "")
	v.SetDefault("auth.superuser_password", "")
	v.SetDefault("auth.login_key", "name")
	v.SetDefault("auth.hasher", "bcrypt")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_ttl", 7*24*time.Hour)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "pagegraph.db")
}

// Load reads the configuration from pagegraph.{yml,yaml} in the working
// directory or /etc/pagegraph, overlaid with environment variables. A
// missing file is not an error; the defaults and environment stand alone.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("pagegraph")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pagegraph")

	v.SetEnvPrefix("PAGEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config

	err := v.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

// Unpack splits the root configuration into the per-component configs for
// dependency injection.
func Unpack(c Config) (server.Config, log.Config, auth.Config, graph.StoreConfig) {
	return c.Server, c.Log, c.Auth, c.Store
}
