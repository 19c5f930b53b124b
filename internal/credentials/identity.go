// Package credentials bootstraps the MinIO user of a bucket and keeps its
// credentials in a secret store.
package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/snapp-incubator/minio-bucket-operator/internal/minioadmin"
	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateUser returns a user with random alphanumeric credentials.
func GenerateUser() (minioadmin.User, error) {
	username, err := RandomString(consts.BucketAccessKeyLength)
	if err != nil {
		return minioadmin.User{}, err
	}
	password, err := RandomString(consts.BucketSecretKeyLength)
	if err != nil {
		return minioadmin.User{}, err
	}
	return minioadmin.User{Username: username, Password: password}, nil
}

// RandomString returns length random alphanumeric characters.
func RandomString(length int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string, %w", err)
		}
		b[i] = alphanumeric[n.Int64()]
	}
	return string(b), nil
}

// EnsureIdentity returns the user stored in the named secret, creating the
// secret with a random user first if it does not exist. created reports
// whether this call created it. A secret created concurrently by someone else
// wins and its user is returned.
func EnsureIdentity(ctx context.Context, store SecretStore, name string) (user minioadmin.User, created bool, err error) {
	data, found, err := store.Get(ctx, name)
	if err != nil {
		return minioadmin.User{}, false, err
	}

	if !found {
		generated, err := GenerateUser()
		if err != nil {
			return minioadmin.User{}, false, err
		}

		data, err = store.Create(ctx, name, map[string]string{
			consts.DataKeyAccessKey: generated.Username,
			consts.DataKeySecretKey: generated.Password,
		})
		switch {
		case errors.Is(err, ErrAlreadyExists):
			if data, found, err = store.Get(ctx, name); err != nil {
				return minioadmin.User{}, false, err
			} else if !found {
				return minioadmin.User{}, false, fmt.Errorf("secret %s vanished after a create conflict", name)
			}
		case err != nil:
			return minioadmin.User{}, false, err
		default:
			created = true
		}
	}

	user, err = userFromData(data)
	if err != nil {
		return minioadmin.User{}, false, fmt.Errorf("invalid secret %s, %w", name, err)
	}
	return user, created, nil
}

func userFromData(data map[string]string) (minioadmin.User, error) {
	username, err := ReadString(data, consts.DataKeyAccessKey)
	if err != nil {
		return minioadmin.User{}, err
	}
	password, err := ReadString(data, consts.DataKeySecretKey)
	if err != nil {
		return minioadmin.User{}, err
	}
	return minioadmin.User{Username: username, Password: password}, nil
}
