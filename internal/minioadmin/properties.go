package minioadmin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/snapp-incubator/minio-bucket-operator/api/v1alpha1"
)

const (
	permissionDownload = "download"
	permissionPrivate  = "private"
)

type versioningInfo struct {
	Versioning *struct {
		Status string `json:"status"`
	} `json:"versioning"`
}

type anonymousInfo struct {
	Permission string `json:"permission"`
}

type quotaInfo struct {
	Quota *int64 `json:"quota"`
}

type retentionInfo struct {
	Enabled  string `json:"enabled"`
	Mode     string `json:"mode"`
	Validity string `json:"validity"`
}

func (s *Service) SetVersioning(ctx context.Context, bucket string, enable bool) error {
	op := "suspend"
	if enable {
		op = "enable"
	}
	return s.action(ctx, ErrSetVersioningFailed, "version", op, s.bucketTarget(bucket))
}

func (s *Service) GetVersioning(ctx context.Context, bucket string) (bool, error) {
	info, err := query[versioningInfo](ctx, s, "version", "info", s.bucketTarget(bucket))
	if err != nil {
		return false, err
	}
	return info.Versioning != nil && strings.EqualFold(info.Versioning.Status, "enabled"), nil
}

// SetAnonymousAccess grants or revokes anonymous download of the bucket objects.
func (s *Service) SetAnonymousAccess(ctx context.Context, bucket string, enable bool) error {
	permission := permissionPrivate
	if enable {
		permission = permissionDownload
	}
	return s.action(ctx, ErrSetAnonymousAccessFailed, "anonymous", "set", permission, s.bucketTarget(bucket)+"/*")
}

func (s *Service) GetAnonymousAccess(ctx context.Context, bucket string) (bool, error) {
	info, err := query[anonymousInfo](ctx, s, "anonymous", "get", s.bucketTarget(bucket)+"/*")
	if err != nil {
		return false, err
	}
	return info.Permission == permissionDownload, nil
}

// SetQuota sets a hard quota in bytes, or clears it when quota is nil.
func (s *Service) SetQuota(ctx context.Context, bucket string, quota *int64) error {
	if quota == nil {
		s.logger.V(1).Info("clearing quota", "bucket", bucket)
		return s.action(ctx, ErrSetQuotaFailed, "quota", "clear", s.bucketTarget(bucket))
	}
	s.logger.V(1).Info("setting quota", "bucket", bucket, "quota", humanize.IBytes(uint64(*quota)))
	return s.action(ctx, ErrSetQuotaFailed, "quota", "set", s.bucketTarget(bucket), "--size", fmt.Sprintf("%dB", *quota))
}

// GetQuota returns the quota as reported, nil when the record has no quota field.
func (s *Service) GetQuota(ctx context.Context, bucket string) (*int64, error) {
	info, err := query[quotaInfo](ctx, s, "quota", "info", s.bucketTarget(bucket))
	if err != nil {
		return nil, err
	}
	return info.Quota, nil
}

// SetDefaultRetention sets the default retention of a locked bucket, or clears it when retention is nil.
func (s *Service) SetDefaultRetention(ctx context.Context, bucket string, retention *v1alpha1.BucketRetention) error {
	if retention == nil {
		return s.action(ctx, ErrSetRetentionFailed, "retention", "clear", "--default", s.bucketTarget(bucket))
	}
	return s.action(ctx, ErrSetRetentionFailed, "retention", "set", "--default",
		string(retention.Mode), fmt.Sprintf("%dd", retention.Validity), s.bucketTarget(bucket))
}

type RetentionState int

const (
	RetentionAbsent RetentionState = iota
	RetentionSet
	// RetentionUnrecognized means MinIO reports a default retention in a mode this operator does not know.
	RetentionUnrecognized
)

func (s RetentionState) String() string {
	switch s {
	case RetentionSet:
		return "Set"
	case RetentionUnrecognized:
		return "Unrecognized"
	default:
		return "Absent"
	}
}

type DefaultRetention struct {
	State     RetentionState
	Retention *v1alpha1.BucketRetention
	// RawMode is the mode as printed by mc, kept for unrecognized modes.
	RawMode string
}

// Effective is the retention in force as far as the operator can tell, nil unless State is RetentionSet.
func (d DefaultRetention) Effective() *v1alpha1.BucketRetention {
	if d.State != RetentionSet {
		return nil
	}
	return d.Retention
}

func (s *Service) GetDefaultRetention(ctx context.Context, bucket string) (DefaultRetention, error) {
	info, err := query[retentionInfo](ctx, s, "retention", "info", s.bucketTarget(bucket), "--default")
	if err != nil {
		return DefaultRetention{}, err
	}

	if !strings.EqualFold(info.Enabled, "enabled") || info.Mode == "" || info.Validity == "" {
		return DefaultRetention{State: RetentionAbsent}, nil
	}

	validity, err := strconv.Atoi(strings.ReplaceAll(strings.ToLower(info.Validity), "days", ""))
	if err != nil {
		return DefaultRetention{}, fmt.Errorf("failed to parse retention validity %q of bucket %s, %w", info.Validity, bucket, err)
	}

	var mode v1alpha1.RetentionMode
	switch strings.ToLower(info.Mode) {
	case string(v1alpha1.RetentionCompliance):
		mode = v1alpha1.RetentionCompliance
	case string(v1alpha1.RetentionGovernance):
		mode = v1alpha1.RetentionGovernance
	default:
		s.logger.Error(nil, "unknown retention mode", "bucket", bucket, "mode", info.Mode)
		return DefaultRetention{State: RetentionUnrecognized, RawMode: info.Mode}, nil
	}

	return DefaultRetention{
		State:     RetentionSet,
		Retention: &v1alpha1.BucketRetention{Validity: validity, Mode: mode},
		RawMode:   info.Mode,
	}, nil
}
