package credentials

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var (
	ErrAlreadyExists = errors.New("secret already exists")
	ErrMissingData   = errors.New("secret has no data")
	ErrMissingKey    = errors.New("secret is missing a key")
)

// SecretStore is a named key/value store for credentials.
type SecretStore interface {
	// Get returns the secret data, false if the secret does not exist.
	Get(ctx context.Context, name string) (map[string]string, bool, error)
	// Create stores a new secret and fails with ErrAlreadyExists if the name is taken.
	Create(ctx context.Context, name string, data map[string]string) (map[string]string, error)
}

// KubeSecretStore keeps credentials in Kubernetes Secrets of one namespace.
type KubeSecretStore struct {
	Client    client.Client
	Namespace string
	// Labels are set on created secrets.
	Labels map[string]string
}

var _ SecretStore = &KubeSecretStore{}

func (s *KubeSecretStore) Get(ctx context.Context, name string) (map[string]string, bool, error) {
	secret := &corev1.Secret{}
	switch err := s.Client.Get(ctx, types.NamespacedName{Namespace: s.Namespace, Name: name}, secret); {
	case apierrors.IsNotFound(err):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to get secret %s, %w", name, err)
	}

	data := make(map[string]string, len(secret.Data)+len(secret.StringData))
	for k, v := range secret.Data {
		data[k] = string(v)
	}
	for k, v := range secret.StringData {
		data[k] = v
	}
	return data, true, nil
}

func (s *KubeSecretStore) Create(ctx context.Context, name string, data map[string]string) (map[string]string, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: s.Namespace,
			Name:      name,
			Labels:    s.Labels,
		},
		Data: make(map[string][]byte, len(data)),
	}
	for k, v := range data {
		secret.Data[k] = []byte(v)
	}

	switch err := s.Client.Create(ctx, secret); {
	case apierrors.IsAlreadyExists(err):
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	case err != nil:
		return nil, fmt.Errorf("failed to create secret %s, %w", name, err)
	}
	return data, nil
}

// ReadString returns the value of key, failing on a secret without data or without the key.
func ReadString(data map[string]string, key string) (string, error) {
	if len(data) == 0 {
		return "", ErrMissingData
	}
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v, nil
}
