package kcrypto

import (
	"sync"

	"github.com/kimberlitedb/kimberlite-sub005/ids"
	"github.com/kimberlitedb/kimberlite-sub005/internal/assert"
	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
)

// MasterKeyProvider is the external HSM/KMS collaborator. The core
// never stores a master key in cleartext; it only ever asks this
// interface to wrap or unwrap a KEK on its behalf.
type MasterKeyProvider interface {
	// WrapKEK wraps kek under the tenant's master key, returning an
	// opaque blob safe to store in metadata.
	WrapKEK(tenant ids.TenantId, kek KEK) ([]byte, error)
	// UnwrapKEK reverses WrapKEK.
	UnwrapKEK(tenant ids.TenantId, wrapped []byte) (KEK, error)
}

// LocalMasterKeyProvider is a process-local dev/test implementation of
// MasterKeyProvider, backed by an in-memory key. Production
// deployments supply an HSM/KMS-backed implementation of the same
// interface; nothing else in this module depends on which one is
// wired in.
type LocalMasterKeyProvider struct {
	master KEK
}

// NewLocalMasterKeyProvider generates a fresh in-memory master key.
// Intended for development and test only.
func NewLocalMasterKeyProvider() (*LocalMasterKeyProvider, error) {
	k, err := GenerateKEK()
	if err != nil {
		return nil, err
	}
	return &LocalMasterKeyProvider{master: k}, nil
}

func (p *LocalMasterKeyProvider) WrapKEK(_ ids.TenantId, kek KEK) ([]byte, error) {
	return WrapDEK(p.master, DEK(kek))
}

func (p *LocalMasterKeyProvider) UnwrapKEK(_ ids.TenantId, wrapped []byte) (KEK, error) {
	dek, err := UnwrapDEK(p.master, wrapped)
	if err != nil {
		return KEK{}, err
	}
	return KEK(dek), nil
}

// KeyManager owns the per-tenant KEK and per-stream DEK hierarchy. It
// tracks wrapped blobs only; unwrapped keys never leave the process and
// are held in memory only as long as needed for an envelope operation.
type KeyManager struct {
	mu     sync.Mutex
	master MasterKeyProvider
	log    logging.Logger

	wrappedKEKs map[ids.TenantId][]byte
	deks        map[ids.StreamId]wrappedDEK
}

type wrappedDEK struct {
	wrapped []byte
	keyID   uint64 // monotonically incremented on each rotation
}

// NewKeyManager constructs a KeyManager backed by the given master key
// provider.
func NewKeyManager(master MasterKeyProvider, log logging.Logger) *KeyManager {
	return &KeyManager{
		master:      master,
		log:         log,
		wrappedKEKs: make(map[ids.TenantId][]byte),
		deks:        make(map[ids.StreamId]wrappedDEK),
	}
}

// CreateTenantKEK generates and wraps a fresh KEK for tenant, recording
// it in the manager. Called once, at tenant creation.
func (m *KeyManager) CreateTenantKEK(tenant ids.TenantId) error {
	kek, err := GenerateKEK()
	if err != nil {
		return err
	}
	wrapped, err := m.master.WrapKEK(tenant, kek)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wrappedKEKs[tenant] = wrapped
	return nil
}

func (m *KeyManager) tenantKEK(tenant ids.TenantId) (KEK, error) {
	m.mu.Lock()
	wrapped, ok := m.wrappedKEKs[tenant]
	m.mu.Unlock()
	if !ok {
		return KEK{}, ids.New(ids.KindApplication, "tenant has no registered kek")
	}
	return m.master.UnwrapKEK(tenant, wrapped)
}

// StreamDEK returns the current DEK for a stream, unwrapped under the
// tenant's KEK, generating and wrapping a fresh one on first use.
func (m *KeyManager) StreamDEK(stream ids.StreamId) (DEK, error) {
	m.mu.Lock()
	existing, ok := m.deks[stream]
	m.mu.Unlock()

	kek, err := m.tenantKEK(stream.Tenant)
	if err != nil {
		return DEK{}, err
	}

	if ok {
		return UnwrapDEK(kek, existing.wrapped)
	}

	dek, err := GenerateDEK()
	if err != nil {
		return DEK{}, err
	}
	wrapped, err := WrapDEK(kek, dek)
	if err != nil {
		return DEK{}, err
	}
	m.mu.Lock()
	m.deks[stream] = wrappedDEK{wrapped: wrapped, keyID: 1}
	m.mu.Unlock()
	return dek, nil
}

// Rotate generates a new DEK for stream, wrapped under the current
// tenant KEK, and installs it as the active key for future writes.
// The previous wrapped DEK is overwritten: KeyManager keeps only the
// current DEK for each stream, so ciphertext sealed under an earlier DEK
// cannot be opened through it. The kernel only records that a rotation
// happened (kernel.CommandRotateKey), never key material itself.
func (m *KeyManager) Rotate(stream ids.StreamId) error {
	kek, err := m.tenantKEK(stream.Tenant)
	if err != nil {
		return err
	}
	dek, err := GenerateDEK()
	if err != nil {
		return err
	}
	wrapped, err := WrapDEK(kek, dek)
	if err != nil {
		return err
	}
	m.mu.Lock()
	prev := m.deks[stream]
	m.deks[stream] = wrappedDEK{wrapped: wrapped, keyID: prev.keyID + 1}
	m.mu.Unlock()
	assert.Invariant(len(wrapped) > 0, "rotated dek wrapped to empty blob for stream %s", stream)
	if m.log != nil {
		m.log.Infow("rotated stream dek", "stream", stream.Key())
	}
	return nil
}
