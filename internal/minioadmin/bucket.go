package minioadmin

import (
	"context"
	"fmt"
	"strings"

	"github.com/snapp-incubator/minio-bucket-operator/api/v1alpha1"
)

type bucketEntry struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}

func (s *Service) ListBuckets(ctx context.Context) ([]string, error) {
	entries, err := queryAll[bucketEntry](ctx, s, "ls", s.alias)
	if err != nil {
		return nil, err
	}

	buckets := make([]string, 0, len(entries))
	for _, e := range entries {
		buckets = append(buckets, strings.TrimSuffix(e.Key, "/"))
	}
	return buckets, nil
}

func (s *Service) BucketExists(ctx context.Context, name string) (bool, error) {
	buckets, err := s.ListBuckets(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range buckets {
		if b == name {
			return true, nil
		}
	}
	return false, nil
}

// ApplyBucket makes the bucket if needed and converges its versioning,
// anonymous access, quota and, on locked buckets, default retention. The first
// failing step aborts; earlier steps are not undone.
func (s *Service) ApplyBucket(ctx context.Context, spec *v1alpha1.MinioBucketSpec) error {
	args := []string{"mb", s.bucketTarget(spec.Name), "-p"}
	if spec.Lock {
		args = append(args, "--with-lock")
	}
	if err := s.action(ctx, ErrMakeBucketFailed, args...); err != nil {
		return stepError(spec.Name, "make bucket", err)
	}

	// Object locking requires versioning.
	if err := s.SetVersioning(ctx, spec.Name, spec.Versioning || spec.Lock); err != nil {
		return stepError(spec.Name, "versioning", err)
	}

	if err := s.SetAnonymousAccess(ctx, spec.Name, spec.AnonymousReadAccess); err != nil {
		return stepError(spec.Name, "anonymous access", err)
	}

	if err := s.SetQuota(ctx, spec.Name, spec.Quota); err != nil {
		return stepError(spec.Name, "quota", err)
	}

	if spec.Lock {
		if err := s.SetDefaultRetention(ctx, spec.Name, spec.Retention); err != nil {
			return stepError(spec.Name, "retention", err)
		}
	}

	return nil
}

func stepError(bucket, step string, err error) error {
	return fmt.Errorf("failed to apply %s of bucket %s, %w", step, bucket, err)
}
