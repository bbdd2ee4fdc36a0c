// Package loader provides the plugin-like feature loading system.
//
// The serve command registers every feature here instead of mounting routes
// itself. Each feature implements the Feature interface, which defines its
// lifecycle hooks and route registration logic.
//
// # Feature Interface
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// # Manager
//
// The Manager struct holds the registry of available features. It handles:
//   - Registration of features via Register()
//   - Initialization and loading of enabled features via LoadAll()
//
// LoadAll skips disabled features rather than failing: export, for example,
// reports IsEnabled false when no object storage is configured, and the
// server comes up with the sync and verify endpoints alone.
package loader
