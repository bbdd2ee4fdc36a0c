// Package config provides configuration management for the sync service.
//
// It utilizes Viper for loading configuration from environment variables
// and an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key)
//   - Dolt: connection to the version-controlled database
//   - Target: connection to the conventional database
//   - Sync: engine settings (batch size, conflict policy, cursor placement)
//   - Storage: S3/MinIO credentials and bucket for snapshot exports
//   - Log: logging level and format
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dolt.Host)
package config
