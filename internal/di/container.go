package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stagecart/api/internal/platform/config"
	"github.com/stagecart/api/internal/repositories"
	"github.com/stagecart/api/internal/services"
)

// Services bundles the service-layer contracts the entrypoint relies upon.
// Concrete implementations are assembled via dependency injection in NewContainer.
type Services struct {
	OrderChanges services.OrderChangeService
	Previews     services.PreviewService
}

// Collaborators carries the external service contracts the change subsystem
// depends on. Nil members leave the matching behaviour disabled: no tax
// recomputation, no promotion adjustments, no shipping option resolution, no
// published events.
type Collaborators struct {
	Taxes           services.TaxLineService
	Promotions      services.PromotionAdjustmentService
	ShippingOptions services.ShippingOptionService
	Events          services.ChangeEventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub collaborators.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, collab Collaborators) (Services, error) {
	var svc Services

	engine, err := services.NewChangeEngine(services.ChangeEngineDeps{
		Orders:     reg.Orders(),
		Changes:    reg.OrderChanges(),
		Scopes:     reg.ChangeScopes(),
		UnitOfWork: reg,
		Taxes:      collab.Taxes,
		Promotions: collab.Promotions,
		Logger:     collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build change engine: %w", err)
	}

	changeSvc, err := services.NewOrderChangeService(services.OrderChangeServiceDeps{
		Orders:          reg.Orders(),
		Changes:         reg.OrderChanges(),
		Scopes:          reg.ChangeScopes(),
		ShippingOptions: collab.ShippingOptions,
		Promotions:      collab.Promotions,
		Engine:          engine,
		UnitOfWork:      reg,
		Clock:           time.Now,
		Events:          collab.Events,
		Logger:          collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order change service: %w", err)
	}
	svc.OrderChanges = changeSvc

	previewSvc, err := services.NewPreviewService(services.PreviewServiceDeps{
		Orders:  reg.Orders(),
		Changes: reg.OrderChanges(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build preview service: %w", err)
	}
	svc.Previews = previewSvc

	return svc, nil
}
