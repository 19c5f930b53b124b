// Package minioadmin translates bucket, policy and user management into mc
// commands and reads the live state back from their JSON records.
package minioadmin

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/snapp-incubator/minio-bucket-operator/internal/mcclient"
)

var (
	ErrMakeBucketFailed         = errors.New("failed to make bucket")
	ErrSetVersioningFailed      = errors.New("failed to set bucket versioning")
	ErrSetAnonymousAccessFailed = errors.New("failed to set bucket anonymous access")
	ErrSetQuotaFailed           = errors.New("failed to set bucket quota")
	ErrSetRetentionFailed       = errors.New("failed to set bucket default retention")
	ErrApplyPolicyFailed        = errors.New("failed to apply policy")
	ErrCreateUserFailed         = errors.New("failed to create user")
	ErrAttachPolicyFailed       = errors.New("failed to attach policy")
	// ErrNoRecord is returned by getters when mc printed nothing to read the state from.
	ErrNoRecord = errors.New("mc returned no record")
)

type Options struct {
	Alias   string
	TempDir string
}

type Service struct {
	transport mcclient.Transport
	alias     string
	tempDir   string
	logger    logr.Logger
}

func NewService(transport mcclient.Transport, opts Options) *Service {
	if opts.Alias == "" {
		opts.Alias = mcclient.DefaultAlias
	}
	return &Service{
		transport: transport,
		alias:     opts.Alias,
		tempDir:   opts.TempDir,
		logger:    logf.Log.WithName("minioadmin"),
	}
}

func (s *Service) bucketTarget(bucket string) string {
	return s.alias + "/" + bucket
}

// actionResult is the record printed by mutating commands.
type actionResult struct {
	Status string `json:"status"`
}

// expectSuccess turns the outcome of a mutating command into kind unless its
// first record reports success.
func expectSuccess(kind error, records mcclient.Records, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}

	results, err := mcclient.Decode[actionResult](records)
	if err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: %w", kind, ErrNoRecord)
	}
	if results[0].Status != "success" {
		return fmt.Errorf("%w: status %q", kind, results[0].Status)
	}
	return nil
}

func (s *Service) action(ctx context.Context, kind error, args ...string) error {
	records, err := s.transport.Exec(ctx, args...)
	return expectSuccess(kind, records, err)
}

// queryAll runs a read command and decodes all of its records.
func queryAll[T any](ctx context.Context, s *Service, args ...string) ([]T, error) {
	records, err := s.transport.Exec(ctx, args...)
	if err != nil {
		return nil, err
	}
	return mcclient.Decode[T](records)
}

// query runs a read command and decodes its first record.
func query[T any](ctx context.Context, s *Service, args ...string) (T, error) {
	var zero T
	results, err := queryAll[T](ctx, s, args...)
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNoRecord, mcclient.CommandFamily(s.alias, args))
	}
	return results[0], nil
}
