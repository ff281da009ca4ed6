package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/config"
	"github.com/openfroyo/catalogd/pkg/engine"
)

// Submitter dispatches the head of a persisted chain. *engine.Processor implements it.
type Submitter interface {
	Submit(ctx context.Context, item *engine.WorkItem) error
}

// Result describes the chain a request produced.
type Result struct {
	// WorkItemIDs lists the chain in dispatch order. The first entry is the head.
	WorkItemIDs []string `json:"work_item_ids"`

	// HostIDs lists hosts created or selected by the request.
	HostIDs []string `json:"host_ids,omitempty"`

	// EndpointID is set for endpoint requests.
	EndpointID string `json:"endpoint_id,omitempty"`

	// Completed is set when a waiting restart saw its last work item resolve.
	Completed bool `json:"completed,omitempty"`
}

// Service turns catalog requests into work item chains.
type Service struct {
	store     engine.Store
	submitter Submitter
	logger    zerolog.Logger
	validate  *validator.Validate
	options   atomic.Pointer[config.CatalogConfig]
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewService creates a catalog service.
func NewService(store engine.Store, submitter Submitter, options config.CatalogConfig, logger zerolog.Logger) *Service {
	s := &Service{
		store:     store,
		submitter: submitter,
		logger:    logger.With().Str("component", "catalog").Logger(),
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepContext,
	}
	s.options.Store(&options)
	return s
}

// Options returns the catalog options in effect.
func (s *Service) Options() config.CatalogConfig {
	return *s.options.Load()
}

// SetOptions replaces the catalog options. It has the shape of config.ReloadFunc.
func (s *Service) SetOptions(options config.CatalogConfig) error {
	if options.MaxFanOut < 1 {
		return engine.NewValidationError(fmt.Sprintf("max fan out must be at least 1, got %d", options.MaxFanOut), nil).
			WithCode(engine.ErrCodeValidation)
	}
	s.options.Store(&options)
	return nil
}

// checkRequest validates struct tags on a request.
func (s *Service) checkRequest(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return engine.NewValidationError(
				fmt.Sprintf("%s failed on %q", verrs[0].Field(), verrs[0].Tag()), err).
				WithCode(engine.ErrCodeValidation)
		}
		return engine.NewValidationError("invalid request", err).WithCode(engine.ErrCodeValidation)
	}
	return nil
}

// owner resolves the service and its team.
func (s *Service) owner(ctx context.Context, serviceID string) (*engine.Service, engine.TeamRef, error) {
	service, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, engine.TeamRef{}, notFound("service", serviceID)
		}
		return nil, engine.TeamRef{}, fmt.Errorf("failed to load service %s: %w", serviceID, err)
	}

	team := engine.TeamRef{ID: service.TeamID}
	t, err := s.store.GetTeam(ctx, service.TeamID)
	switch {
	case err == nil:
		team.Name = t.Name
	case errors.Is(err, engine.ErrNotFound):
		s.logger.Warn().Str("service_id", serviceID).Str("team_id", service.TeamID).Msg("Service team not found")
	default:
		return nil, engine.TeamRef{}, fmt.Errorf("failed to load team %s: %w", service.TeamID, err)
	}

	return service, team, nil
}

// module loads a module of the service.
func (s *Service) module(ctx context.Context, serviceID, moduleID string) (*engine.Module, error) {
	module, err := s.store.GetModule(ctx, serviceID, moduleID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, notFound("module", moduleID)
		}
		return nil, fmt.Errorf("failed to load module %s: %w", moduleID, err)
	}
	return module, nil
}

// submitChain links items in order, persists them and dispatches the head.
func (s *Service) submitChain(ctx context.Context, items []*engine.WorkItem) ([]string, error) {
	head, err := engine.LinkChain(items...)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if err := s.store.SaveWorkItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to save work item %s: %w", item.ID, err)
		}
		ids = append(ids, item.ID)
	}

	s.logger.Info().
		Str("head_id", head.ID).
		Str("action", head.Action().String()).
		Int("length", len(items)).
		Msg("Submitting work item chain")

	if err := s.submitter.Submit(ctx, head); err != nil {
		return ids, fmt.Errorf("failed to submit chain %s: %w", head.ID, err)
	}
	return ids, nil
}

func serviceRef(service *engine.Service) engine.ServiceRef {
	return engine.ServiceRef{ID: service.ID, Name: service.Name}
}

func notFound(what, id string) error {
	return engine.NewValidationError(fmt.Sprintf("%s %s not found", what, id), engine.ErrNotFound).
		WithCode(engine.ErrCodeNotFound).
		WithResource(id)
}

func busy(what, name, status string) error {
	return engine.NewConflictError(fmt.Sprintf("%s %s is busy (%s)", what, name, status), nil).
		WithCode(engine.ErrCodeBusy).
		WithResource(name)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
