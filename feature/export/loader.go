package export

import (
	"doltsync/core/storage"
	"doltsync/core/syncer"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates a new export feature.
func NewFeature(source syncer.Source, target syncer.Adapter, doltDB *gorm.DB, client storage.Client, bucket string, defaults syncer.Config, logger *zap.Logger) *Feature {
	svc := NewService(source, target, doltDB, client, bucket, defaults, logger)
	h := NewHandler(svc)
	return &Feature{service: svc, handler: h}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "export"
}

// IsEnabled checks if the feature is enabled. The feature is disabled when no
// storage client is configured.
func (f *Feature) IsEnabled() bool {
	return f.service.client != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
