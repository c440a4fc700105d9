package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"provchain/internal/domain"
	"provchain/internal/metrics"
	"provchain/internal/notify"
	"provchain/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegistryService implements the three custody transitions plus read access.
// Every mutation runs its precondition checks and its commit behind a single
// mutex, so "transfer if caller is current owner" and "verify if not yet
// verified" cannot race.
type RegistryService interface {
	CreateProduct(ctx context.Context, caller domain.Identity, name, manufacturerName, initialLocation string) (*domain.Product, error)
	TransferProduct(ctx context.Context, caller domain.Identity, id int64, newOwner domain.Identity, newLocation string) error
	VerifyProduct(ctx context.Context, caller domain.Identity, id int64) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetTotalProducts(ctx context.Context) (int64, error)
}

type registryService struct {
	mu       sync.Mutex
	products repository.ProductRepository
	access   AccessService
	sink     notify.Sink
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistryService creates a new instance of RegistryService
func NewRegistryService(
	products repository.ProductRepository,
	access AccessService,
	sink notify.Sink,
	m *metrics.Metrics,
	logger *zap.Logger,
) RegistryService {
	return &registryService{
		products: products,
		access:   access,
		sink:     sink,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateProduct registers a new product owned by the calling manufacturer
// and returns it with its assigned sequential id.
func (s *registryService) CreateProduct(ctx context.Context, caller domain.Identity, name, manufacturerName, initialLocation string) (*domain.Product, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(manufacturerName) == "" {
		s.reject("create")
		return nil, fmt.Errorf("%w: name and manufacturer name are required", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	isManufacturer, err := s.access.IsManufacturer(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !isManufacturer {
		s.reject("create")
		return nil, fmt.Errorf("%w: manufacturer role required", domain.ErrUnauthorized)
	}

	now := s.now()
	product := &domain.Product{
		Name:             name,
		ManufacturerName: manufacturerName,
		ManufacturedAt:   now,
		CurrentLocation:  initialLocation,
		CurrentOwner:     caller,
		Verified:         false,
	}
	checkpoint := domain.Checkpoint{
		Event:      domain.CheckpointCreated,
		Location:   initialLocation,
		Actor:      caller,
		RecordedAt: now,
	}

	id, err := s.products.Create(ctx, product, checkpoint)
	if err != nil {
		return nil, err
	}
	product.ID = id
	checkpoint.Seq = 1
	product.Checkpoints = []domain.Checkpoint{checkpoint}

	s.metrics.ProductsCreated.Inc()
	s.publish(ctx, domain.ProductCreated{
		EventID:      uuid.New(),
		ProductID:    id,
		Name:         name,
		Manufacturer: manufacturerName,
	})

	return product, nil
}

// TransferProduct moves custody of the product to newOwner. Only the current
// owner at the time of the call may transfer; transferring to the current
// owner is allowed and still checkpoints and notifies.
func (s *registryService) TransferProduct(ctx context.Context, caller domain.Identity, id int64, newOwner domain.Identity, newLocation string) error {
	if newOwner.IsZero() || strings.TrimSpace(newLocation) == "" {
		s.reject("transfer")
		return fmt.Errorf("%w: new owner and new location are required", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if product.CurrentOwner != caller {
		s.reject("transfer")
		return fmt.Errorf("%w: only the current owner may transfer", domain.ErrUnauthorized)
	}

	checkpoint := domain.Checkpoint{
		Event:      domain.CheckpointTransferred,
		Location:   newLocation,
		Actor:      caller,
		RecordedAt: s.now(),
	}
	if err := s.products.Transfer(ctx, id, newOwner, newLocation, checkpoint); err != nil {
		return err
	}

	s.metrics.ProductsTransferred.Inc()
	s.publish(ctx, domain.ProductTransferred{
		EventID:   uuid.New(),
		ProductID: id,
		From:      product.CurrentOwner,
		To:        newOwner,
		Location:  newLocation,
	})

	return nil
}

// VerifyProduct marks the product verified. Verification is a one-way edge,
// independent of how often the product has been transferred.
func (s *registryService) VerifyProduct(ctx context.Context, caller domain.Identity, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return err
	}

	isVerifier, err := s.access.IsVerifier(ctx, caller)
	if err != nil {
		return err
	}
	if !isVerifier {
		s.reject("verify")
		return fmt.Errorf("%w: verifier role required", domain.ErrUnauthorized)
	}
	if product.Verified {
		s.reject("verify")
		return domain.ErrAlreadyVerified
	}

	checkpoint := domain.Checkpoint{
		Event:      domain.CheckpointVerified,
		Actor:      caller,
		RecordedAt: s.now(),
	}
	if err := s.products.Verify(ctx, id, checkpoint); err != nil {
		return err
	}

	s.metrics.ProductsVerified.Inc()
	s.publish(ctx, domain.ProductVerified{
		EventID:   uuid.New(),
		ProductID: id,
		Verifier:  caller,
	})

	return nil
}

// GetProduct returns the full product record including its checkpoint log.
// The repository reads both from one snapshot, so the fields and the log
// always reflect the same committed state.
func (s *registryService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// GetTotalProducts returns the count of products ever created.
func (s *registryService) GetTotalProducts(ctx context.Context) (int64, error) {
	return s.products.Count(ctx)
}

// publish delivers a notification after a successful commit. Delivery is
// fire-and-forget: a sink failure is logged, never surfaced to the caller.
func (s *registryService) publish(ctx context.Context, event domain.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("kind", event.EventKind()),
			zap.Int64("product_id", event.ProductKey()),
			zap.Error(err),
		)
	}
}

func (s *registryService) reject(operation string) {
	s.metrics.RejectedOperations.WithLabelValues(operation).Inc()
}
