package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"provchain/internal/domain"
	"provchain/internal/metrics"
	"provchain/internal/repository"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Mock repositories for testing

type mockProductRepository struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	lastID   int64
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{
		products: make(map[int64]*domain.Product),
	}
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product, checkpoint domain.Checkpoint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	stored := *product
	stored.ID = m.lastID
	checkpoint.Seq = 1
	stored.Checkpoints = []domain.Checkpoint{checkpoint}
	m.products[stored.ID] = &stored
	return stored.ID, nil
}

func (m *mockProductRepository) Transfer(ctx context.Context, id int64, newOwner domain.Identity, newLocation string, checkpoint domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	product.CurrentOwner = newOwner
	product.CurrentLocation = newLocation
	checkpoint.Seq = len(product.Checkpoints) + 1
	product.Checkpoints = append(product.Checkpoints, checkpoint)
	return nil
}

func (m *mockProductRepository) Verify(ctx context.Context, id int64, checkpoint domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	product.Verified = true
	checkpoint.Seq = len(product.Checkpoints) + 1
	product.Checkpoints = append(product.Checkpoints, checkpoint)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *product
	copied.Checkpoints = append([]domain.Checkpoint(nil), product.Checkpoints...)
	return &copied, nil
}

func (m *mockProductRepository) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID, nil
}

type mockRoleRepository struct {
	mu     sync.Mutex
	admin  domain.Identity
	grants map[domain.Identity]map[domain.Role]bool
}

func newMockRoleRepository() *mockRoleRepository {
	return &mockRoleRepository{
		grants: make(map[domain.Identity]map[domain.Role]bool),
	}
}

func (m *mockRoleRepository) SeedAdmin(ctx context.Context, admin domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.admin.IsZero() {
		if m.admin == admin {
			return nil
		}
		return repository.ErrAdminMismatch
	}
	m.admin = admin
	m.grantLocked(admin, domain.RoleManufacturer)
	m.grantLocked(admin, domain.RoleVerifier)
	return nil
}

func (m *mockRoleRepository) Admin(ctx context.Context) (domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admin, nil
}

func (m *mockRoleRepository) HasRole(ctx context.Context, identity domain.Identity, role domain.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[identity][role], nil
}

func (m *mockRoleRepository) Grant(ctx context.Context, identity domain.Identity, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grantLocked(identity, role)
	return nil
}

func (m *mockRoleRepository) grantLocked(identity domain.Identity, role domain.Role) {
	if m.grants[identity] == nil {
		m.grants[identity] = make(map[domain.Role]bool)
	}
	m.grants[identity][role] = true
}

func (m *mockRoleRepository) Revoke(ctx context.Context, identity domain.Identity, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[identity], role)
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *captureSink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.EventKind())
	}
	return kinds
}

const (
	adminID    = domain.Identity("addr-admin")
	bobID      = domain.Identity("addr-bob")
	strangerID = domain.Identity("addr-stranger")
)

type registryFixture struct {
	registry RegistryService
	access   AccessService
	roles    *mockRoleRepository
	sink     *captureSink
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()

	roles := newMockRoleRepository()
	access := NewAccessService(roles)
	if err := access.Initialize(context.Background(), adminID); err != nil {
		t.Fatalf("Failed to initialize access control: %v", err)
	}

	sink := &captureSink{}
	registry := NewRegistryService(
		newMockProductRepository(),
		access,
		sink,
		metrics.New(prometheus.NewRegistry()),
		zap.NewNop(),
	)

	return &registryFixture{registry: registry, access: access, roles: roles, sink: sink}
}

func TestCreateProductAsBootstrapAdmin(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	product, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1")
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if product.ID != 1 {
		t.Errorf("Expected id 1, got %d", product.ID)
	}

	got, err := f.registry.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if got.CurrentOwner != adminID {
		t.Errorf("Expected owner %s, got %s", adminID, got.CurrentOwner)
	}
	if got.Verified {
		t.Error("New product must not be verified")
	}
	if len(got.Checkpoints) != 1 {
		t.Errorf("Expected 1 checkpoint, got %d", len(got.Checkpoints))
	}
	if got.Checkpoints[0].Event != domain.CheckpointCreated {
		t.Errorf("Expected created checkpoint, got %s", got.Checkpoints[0].Event)
	}
}

func TestCreateProductRequiresManufacturer(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	_, err := f.registry.CreateProduct(ctx, strangerID, "Widget", "Acme", "Warehouse-1")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}

	total, err := f.registry.GetTotalProducts(ctx)
	if err != nil {
		t.Fatalf("GetTotalProducts failed: %v", err)
	}
	if total != 0 {
		t.Errorf("Rejected create must not bump the counter, got %d", total)
	}
	if len(f.sink.kinds()) != 0 {
		t.Error("Rejected create must not emit a notification")
	}
}

func TestCreateProductValidatesNames(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	cases := []struct{ name, manufacturer string }{
		{"", "Acme"},
		{"Widget", ""},
		{"   ", "Acme"},
	}
	for _, tc := range cases {
		_, err := f.registry.CreateProduct(ctx, adminID, tc.name, tc.manufacturer, "Warehouse-1")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("name=%q manufacturer=%q: expected ErrInvalidArgument, got %v", tc.name, tc.manufacturer, err)
		}
	}
}

func TestTransferProduct(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if err := f.registry.TransferProduct(ctx, adminID, 1, bobID, "Warehouse-2"); err != nil {
		t.Fatalf("TransferProduct failed: %v", err)
	}

	got, err := f.registry.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if got.CurrentOwner != bobID {
		t.Errorf("Expected owner %s, got %s", bobID, got.CurrentOwner)
	}
	if got.CurrentLocation != "Warehouse-2" {
		t.Errorf("Expected location Warehouse-2, got %s", got.CurrentLocation)
	}
	if len(got.Checkpoints) != 2 {
		t.Errorf("Expected 2 checkpoints, got %d", len(got.Checkpoints))
	}

	// The previous owner is now a stranger to the product.
	err = f.registry.TransferProduct(ctx, adminID, 1, adminID, "Warehouse-3")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized for non-owner transfer, got %v", err)
	}

	got, _ = f.registry.GetProduct(ctx, 1)
	if got.CurrentOwner != bobID || got.CurrentLocation != "Warehouse-2" {
		t.Error("Rejected transfer must leave owner and location unchanged")
	}
	if len(got.Checkpoints) != 2 {
		t.Errorf("Rejected transfer must not append a checkpoint, got %d", len(got.Checkpoints))
	}
}

func TestTransferProductValidation(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if err := f.registry.TransferProduct(ctx, adminID, 1, "", "Warehouse-2"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for zero owner, got %v", err)
	}
	if err := f.registry.TransferProduct(ctx, adminID, 1, bobID, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty location, got %v", err)
	}
	if err := f.registry.TransferProduct(ctx, adminID, 999, bobID, "Warehouse-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown product, got %v", err)
	}
}

func TestTransferToCurrentOwnerStillCheckpoints(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	// A no-op transfer to the current owner is accepted behavior.
	if err := f.registry.TransferProduct(ctx, adminID, 1, adminID, "Warehouse-1"); err != nil {
		t.Fatalf("Self-transfer failed: %v", err)
	}

	got, _ := f.registry.GetProduct(ctx, 1)
	if len(got.Checkpoints) != 2 {
		t.Errorf("Self-transfer must still append a checkpoint, got %d", len(got.Checkpoints))
	}
	kinds := f.sink.kinds()
	if len(kinds) != 2 || kinds[1] != domain.EventProductTransferred {
		t.Errorf("Self-transfer must still notify, got %v", kinds)
	}
}

func TestVerifyProduct(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if err := f.registry.TransferProduct(ctx, adminID, 1, bobID, "Warehouse-2"); err != nil {
		t.Fatalf("TransferProduct failed: %v", err)
	}

	if err := f.registry.VerifyProduct(ctx, adminID, 1); err != nil {
		t.Fatalf("VerifyProduct failed: %v", err)
	}

	got, _ := f.registry.GetProduct(ctx, 1)
	if !got.Verified {
		t.Error("Expected product to be verified")
	}
	if len(got.Checkpoints) != 3 {
		t.Errorf("Expected 3 checkpoints, got %d", len(got.Checkpoints))
	}

	if err := f.registry.VerifyProduct(ctx, adminID, 1); !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Errorf("Expected ErrAlreadyVerified, got %v", err)
	}
	got, _ = f.registry.GetProduct(ctx, 1)
	if len(got.Checkpoints) != 3 {
		t.Error("Rejected verify must not append a checkpoint")
	}

	// Verification does not end the custody chain.
	if err := f.registry.TransferProduct(ctx, bobID, 1, adminID, "Warehouse-3"); err != nil {
		t.Errorf("Transfer after verification must be allowed, got %v", err)
	}
	got, _ = f.registry.GetProduct(ctx, 1)
	if !got.Verified {
		t.Error("Verified flag must survive later transfers")
	}
}

func TestVerifyProductRequiresVerifier(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	if err := f.registry.VerifyProduct(ctx, strangerID, 1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	// Grant then revoke: revoked verifiers lose the capability.
	if err := f.access.GrantVerifier(ctx, adminID, bobID); err != nil {
		t.Fatalf("GrantVerifier failed: %v", err)
	}
	if err := f.access.RevokeVerifier(ctx, adminID, bobID); err != nil {
		t.Fatalf("RevokeVerifier failed: %v", err)
	}
	if err := f.registry.VerifyProduct(ctx, bobID, 1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized after revoke, got %v", err)
	}

	got, _ := f.registry.GetProduct(ctx, 1)
	if got.Verified {
		t.Error("Rejected verify must leave the product unverified")
	}
}

func TestGetProductNotFound(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.GetProduct(context.Background(), 999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty registry, got %v", err)
	}
}

func TestNotificationsFollowCommitOrder(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if err := f.registry.TransferProduct(ctx, adminID, 1, bobID, "Warehouse-2"); err != nil {
		t.Fatalf("TransferProduct failed: %v", err)
	}
	if err := f.registry.VerifyProduct(ctx, adminID, 1); err != nil {
		t.Fatalf("VerifyProduct failed: %v", err)
	}

	// A failed call must not slip an event in between.
	if err := f.registry.VerifyProduct(ctx, adminID, 1); err == nil {
		t.Fatal("Expected second verify to fail")
	}

	want := []string{
		domain.EventProductCreated,
		domain.EventProductTransferred,
		domain.EventProductVerified,
	}
	got := f.sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestConcurrentNonOwnerTransfersAllFail(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.registry.TransferProduct(ctx, strangerID, 1, bobID, "Warehouse-2")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Attempt %d: expected ErrUnauthorized, got %v", i, err)
		}
	}

	got, _ := f.registry.GetProduct(ctx, 1)
	if got.CurrentOwner != adminID || got.CurrentLocation != "Warehouse-1" {
		t.Error("Concurrent rejected transfers must leave owner and location unchanged")
	}
	if len(got.Checkpoints) != 1 {
		t.Errorf("Expected 1 checkpoint, got %d", len(got.Checkpoints))
	}
}

func TestProperty_ProductIDsAreGaplessAndSequential(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("n creates assign exactly ids 1..n in call order", prop.ForAll(
		func(n int) bool {
			f := newRegistryFixture(t)
			ctx := context.Background()

			for i := 0; i < n; i++ {
				product, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1")
				if err != nil {
					return false
				}
				if product.ID != int64(i+1) {
					return false
				}
				// Interleave rejected calls; they must not consume ids.
				_, _ = f.registry.CreateProduct(ctx, strangerID, "Widget", "Acme", "Warehouse-1")
			}

			total, err := f.registry.GetTotalProducts(ctx)
			return err == nil && total == int64(n)
		},
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t)
}

func TestProperty_CheckpointLogGrowsWithAcceptedOperations(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("checkpoint count is 1 plus accepted transfers and verifies", prop.ForAll(
		func(transfers int, verify bool) bool {
			f := newRegistryFixture(t)
			ctx := context.Background()

			if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
				return false
			}

			owner := adminID
			for i := 0; i < transfers; i++ {
				next := domain.Identity("addr-owner-" + string(rune('a'+i%26)))
				if err := f.registry.TransferProduct(ctx, owner, 1, next, "Stop"); err != nil {
					return false
				}
				owner = next
			}

			accepted := 1 + transfers
			if verify {
				if err := f.registry.VerifyProduct(ctx, adminID, 1); err != nil {
					return false
				}
				accepted++
			}

			got, err := f.registry.GetProduct(ctx, 1)
			if err != nil || len(got.Checkpoints) != accepted {
				return false
			}
			for i, cp := range got.Checkpoints {
				if cp.Seq != i+1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 15),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_VerifiedIsMonotonic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("once verified, a product stays verified through transfers", prop.ForAll(
		func(transfersAfter int) bool {
			f := newRegistryFixture(t)
			ctx := context.Background()

			if _, err := f.registry.CreateProduct(ctx, adminID, "Widget", "Acme", "Warehouse-1"); err != nil {
				return false
			}
			if err := f.registry.VerifyProduct(ctx, adminID, 1); err != nil {
				return false
			}

			owner := adminID
			for i := 0; i < transfersAfter; i++ {
				next := domain.Identity("addr-owner-" + string(rune('a'+i%26)))
				if err := f.registry.TransferProduct(ctx, owner, 1, next, "Stop"); err != nil {
					return false
				}
				owner = next

				got, err := f.registry.GetProduct(ctx, 1)
				if err != nil || !got.Verified {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
