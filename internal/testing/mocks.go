package testing

import (
	"context"

	"github.com/stretchr/testify/mock"

	v1alpha1 "github.com/imamik/metalboot/api/v1alpha1"
	"github.com/imamik/metalboot/internal/platform/tinkerbell"
	"github.com/imamik/metalboot/internal/provisioning"
)

// MockNodeConfigAPI is a testify mock of provisioning.NodeConfigAPI.
type MockNodeConfigAPI struct {
	mock.Mock
}

// ApplyConfig records the call.
func (m *MockNodeConfigAPI) ApplyConfig(ctx context.Context, address string, base, patch []byte, insecure bool) error {
	args := m.Called(ctx, address, base, patch, insecure)
	return args.Error(0)
}

// Bootstrap records the call.
func (m *MockNodeConfigAPI) Bootstrap(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

// HealthCheck records the call.
func (m *MockNodeConfigAPI) HealthCheck(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

// FetchCredentials records the call.
func (m *MockNodeConfigAPI) FetchCredentials(ctx context.Context, address string) ([]byte, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Reset records the call.
func (m *MockNodeConfigAPI) Reset(ctx context.Context, address string) error {
	args := m.Called(ctx, address)
	return args.Error(0)
}

// TalosConfig records the call.
func (m *MockNodeConfigAPI) TalosConfig() []byte {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]byte)
}

// MockWorkflowAPI is a testify mock of provisioning.WorkflowAPI.
type MockWorkflowAPI struct {
	mock.Mock
}

// Submit records the call.
func (m *MockWorkflowAPI) Submit(ctx context.Context, job tinkerbell.Job) (tinkerbell.SubmitResult, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(tinkerbell.SubmitResult), args.Error(1)
}

// ListStates records the call.
func (m *MockWorkflowAPI) ListStates(ctx context.Context, names []string) ([]tinkerbell.JobState, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tinkerbell.JobState), args.Error(1)
}

// Get records the call.
func (m *MockWorkflowAPI) Get(ctx context.Context, name string) (*v1alpha1.Workflow, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*v1alpha1.Workflow), args.Error(1)
}

// Delete records the call.
func (m *MockWorkflowAPI) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// PatchHardware records the call.
func (m *MockWorkflowAPI) PatchHardware(ctx context.Context, name string, spec tinkerbell.HardwareSpec) error {
	args := m.Called(ctx, name, spec)
	return args.Error(0)
}

// MockSecretStore is a testify mock of provisioning.SecretStore.
type MockSecretStore struct {
	mock.Mock
}

// EnsureNamespace records the call.
func (m *MockSecretStore) EnsureNamespace(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// CreateOrUpdateSecret records the call.
func (m *MockSecretStore) CreateOrUpdateSecret(ctx context.Context, namespace, name string, data map[string][]byte, labels map[string]string) error {
	args := m.Called(ctx, namespace, name, data, labels)
	return args.Error(0)
}

// MockArchiver is a testify mock of provisioning.Archiver.
type MockArchiver struct {
	mock.Mock
}

// Store records the call.
func (m *MockArchiver) Store(ctx context.Context, cluster string, files map[string][]byte) ([]string, error) {
	args := m.Called(ctx, cluster, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var (
	_ provisioning.NodeConfigAPI = (*MockNodeConfigAPI)(nil)
	_ provisioning.WorkflowAPI   = (*MockWorkflowAPI)(nil)
	_ provisioning.SecretStore   = (*MockSecretStore)(nil)
	_ provisioning.Archiver      = (*MockArchiver)(nil)
)
