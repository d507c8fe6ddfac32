package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// InstanceService provisions and looks up service instances.
type InstanceService struct {
	repo domain.InstanceRepository
	options
}

// NewInstanceService creates a service over the given repository.
func NewInstanceService(repo domain.InstanceRepository, opts ...Option) *InstanceService {
	return &InstanceService{repo: repo, options: buildOptions(opts)}
}

// Provision subscribes a client to a service. The instance starts in the
// "requested" state with an empty history.
func (s *InstanceService) Provision(ctx context.Context, clientID, serviceName string) (domain.ServiceInstance, error) {
	clientID = strings.TrimSpace(clientID)
	serviceName = strings.TrimSpace(serviceName)
	if clientID == "" {
		return domain.ServiceInstance{}, &domain.ValidationError{Field: "client_id", Message: "must not be empty"}
	}
	if serviceName == "" {
		return domain.ServiceInstance{}, &domain.ValidationError{Field: "service_name", Message: "must not be empty"}
	}

	id, err := generateID()
	if err != nil {
		return domain.ServiceInstance{}, fmt.Errorf("generating instance id: %w", err)
	}

	instance := domain.NewServiceInstance(id, clientID, serviceName)
	instance.CreatedAt = s.now()
	instance.UpdatedAt = instance.CreatedAt

	if err := s.repo.CreateInstance(ctx, instance); err != nil {
		return domain.ServiceInstance{}, fmt.Errorf("creating instance: %w", err)
	}

	s.logger.Info("instance provisioned",
		zap.String("instance_id", instance.ID),
		zap.String("client_id", clientID),
		zap.String("service", serviceName),
	)

	return instance, nil
}

// Get returns an instance by its unique identifier.
func (s *InstanceService) Get(ctx context.Context, id string) (domain.ServiceInstance, error) {
	return s.repo.GetInstance(ctx, id)
}

// List returns instances matching the given filter.
func (s *InstanceService) List(ctx context.Context, filter domain.InstanceFilter) ([]domain.ServiceInstance, error) {
	return s.repo.ListInstances(ctx, filter)
}
