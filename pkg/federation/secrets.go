package federation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/strata/pkg/attributes"
	"github.com/cuemby/strata/pkg/security"
)

// KeyLength is the length of a ceph client key
const KeyLength = 40

// SecretStore keeps radosgw client keys in the cluster scope of the
// attribute store so every node of the cluster sees them.
type SecretStore struct {
	store   *attributes.Store
	cluster string

	// sealer is nil when secrets are stored in plain text
	sealer *security.Sealer
}

// NewSecretStore creates a secret store. sealer may be nil.
func NewSecretStore(store *attributes.Store, cluster string, sealer *security.Sealer) *SecretStore {
	return &SecretStore{store: store, cluster: cluster, sealer: sealer}
}

// ErrInvalidIdentity is returned for cluster or instance names that would
// split the secret's attribute path
var ErrInvalidIdentity = errors.New("secret identity may not contain dots")

// Path returns the attribute path of an instance secret
func (s *SecretStore) Path(identity string) string {
	return fmt.Sprintf("ceph.secrets.%s.radosgw.%s", s.cluster, identity)
}

func (s *SecretStore) checkIdentity(identity string) error {
	if strings.Contains(s.cluster, ".") || strings.Contains(identity, ".") {
		return fmt.Errorf("%w: cluster %q, instance %q", ErrInvalidIdentity, s.cluster, identity)
	}
	return nil
}

// Load returns the stored secret of an instance. Plain values are accepted
// even when a sealer is configured.
func (s *SecretStore) Load(identity string) (string, bool, error) {
	if err := s.checkIdentity(identity); err != nil {
		return "", false, err
	}
	raw := s.store.String(s.Path(identity))
	if raw == "" {
		return "", false, nil
	}
	if !security.IsSealed(raw) {
		return raw, true, nil
	}
	if s.sealer == nil {
		return "", false, fmt.Errorf("secret for %s is sealed and no secret key is configured", identity)
	}
	key, err := s.sealer.Open(raw)
	if err != nil && !errors.Is(err, security.ErrNotSealed) {
		return "", false, fmt.Errorf("failed to open secret for %s: %w", identity, err)
	}
	return key, true, nil
}

// Save persists the secret of an instance, sealing it when configured
func (s *SecretStore) Save(identity, key string) error {
	if err := s.checkIdentity(identity); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("refusing to save an empty secret for %s", identity)
	}
	value := key
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(key)
		if err != nil {
			return err
		}
		value = sealed
	}
	return s.store.SetOverrideScoped(s.Path(identity), value, attributes.ScopeCluster)
}
