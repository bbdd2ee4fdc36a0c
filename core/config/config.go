package config

import (
	"reflect"
	"strings"

	"doltsync/core/database"
	"doltsync/core/logger"
	"doltsync/core/server"
	"doltsync/core/storage"
	"doltsync/core/syncer"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage (e.g., S3, Minio)
	// used by snapshot exports.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Dolt holds the connection to the version-controlled database. Dolt
	// speaks the MySQL wire protocol, so this is a mysql-driver connection.
	Dolt database.Config `mapstructure:"dolt"`
	// Target holds the connection to the conventional database that commits
	// are replayed onto.
	Target database.Config `mapstructure:"target"`
	// Sync holds the synchronization engine settings.
	Sync syncer.Config `mapstructure:"sync"`
}

// TargetID names the target system in cursor keys, derived from the target
// connection so cursors stay stable across runs against the same database.
func (c *Config) TargetID() string {
	driver := c.Target.Driver
	if driver == "" {
		driver = database.DriverMySQL
	}
	name := c.Target.Name
	if name == "" {
		name = c.Target.Host
	}
	return driver + ":" + name
}

// Dialect returns the adapter variant for the target: the explicit override
// when set, the target driver otherwise.
func (c *Config) Dialect() string {
	if c.Sync.Dialect != "" {
		return c.Sync.Dialect
	}
	if c.Target.Driver != "" {
		return c.Target.Driver
	}
	return database.DriverMySQL
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. DOLT_PORT -> dolt.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
