package consts

import (
	"errors"

	v1 "k8s.io/api/core/v1"
)

const (
	LabelTeam      = "snappcloud.io/team"
	LabelCreatedBy = "created-by"

	ResourceNameMinioSize v1.ResourceName = "minio/size"

	DataKeyAccessKey = "accessKey"
	DataKeySecretKey = "secretKey"

	BucketAccessKeyLength = 20
	BucketSecretKeyLength = 35

	BucketPolicyPrefix = "bucket-"

	ExceededClusterQuotaErrMessage   = "exceeded cluster quota"
	ExceededNamespaceQuotaErrMessage = "exceeded namespace quota"
	ImmutableFieldErrMessage         = "field is immutable"
	RetentionRequiresLockErrMessage  = "retention can only be set on a locked bucket"
	InvalidRetentionErrMessage       = "retention validity must be a positive number of days"
	NegativeQuotaErrMessage          = "quota must not be negative"
	QuotaRequiredErrMessage          = "quota is required when the namespace or team has a minio/size quota"

	ReasonReady = "Ready"
)

var (
	ErrExceededClusterQuota   = errors.New(ExceededClusterQuotaErrMessage)
	ErrExceededNamespaceQuota = errors.New(ExceededNamespaceQuotaErrMessage)
	ErrQuotaRequired          = errors.New(QuotaRequiredErrMessage)
)
