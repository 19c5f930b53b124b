/*
Copyright 2023.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	"context"
	"time"

	openshiftquota "github.com/openshift/api/quota/v1"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation/field"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

var (
	miniobucketlog = logf.Log.WithName("miniobucket-resource")
	runtimeClient  client.Client

	ValidationTimeout = 5 * time.Second
)

func (mb *MinioBucket) SetupWebhookWithManager(mgr ctrl.Manager) error {
	runtimeClient = mgr.GetClient()

	return ctrl.NewWebhookManagedBy(mgr).
		For(mb).
		Complete()
}

//+kubebuilder:webhook:path=/validate-minio-snappcloud-io-v1alpha1-miniobucket,mutating=false,failurePolicy=fail,sideEffects=None,groups=minio.snappcloud.io,resources=miniobuckets,verbs=create;update,versions=v1alpha1,name=vminiobucket.kb.io,admissionReviewVersions=v1

var _ webhook.Validator = &MinioBucket{}

// ValidateCreate implements webhook.Validator so a webhook will be registered for the type
func (mb *MinioBucket) ValidateCreate() error {
	miniobucketlog.Info("validate create", "name", mb.Name)

	ctx, cancel := context.WithTimeout(context.Background(), ValidationTimeout)
	defer cancel()

	allErrs := validateBucketSpec(&mb.Spec)
	allErrs = append(allErrs, validateInstanceExists(ctx, mb)...)
	allErrs = append(allErrs, validateQuota(ctx, mb)...)

	return toInvalid(mb, allErrs)
}

// ValidateUpdate implements webhook.Validator so a webhook will be registered for the type
func (mb *MinioBucket) ValidateUpdate(old runtime.Object) error {
	miniobucketlog.Info("validate update", "name", mb.Name)

	oldBucket, ok := old.(*MinioBucket)
	if !ok {
		return apierrors.NewBadRequest("expected a MinioBucket")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ValidationTimeout)
	defer cancel()

	allErrs := validateBucketSpec(&mb.Spec)
	allErrs = append(allErrs, validateImmutableFields(&oldBucket.Spec, &mb.Spec)...)
	if !quotaEqual(oldBucket.Spec.Quota, mb.Spec.Quota) {
		allErrs = append(allErrs, validateQuota(ctx, mb)...)
	}

	return toInvalid(mb, allErrs)
}

// ValidateDelete implements webhook.Validator so a webhook will be registered for the type
func (mb *MinioBucket) ValidateDelete() error {
	return nil
}

func toInvalid(mb *MinioBucket, allErrs field.ErrorList) error {
	if len(allErrs) == 0 {
		return nil
	}
	return apierrors.NewInvalid(GroupVersion.WithKind("MinioBucket").GroupKind(), mb.Name, allErrs)
}

func validateBucketSpec(spec *MinioBucketSpec) field.ErrorList {
	var allErrs field.ErrorList
	specPath := field.NewPath("spec")

	if spec.Quota != nil && *spec.Quota < 0 {
		allErrs = append(allErrs, field.Invalid(specPath.Child("quota"), *spec.Quota, consts.NegativeQuotaErrMessage))
	}

	if spec.Retention != nil {
		retentionPath := specPath.Child("retention")
		if !spec.Lock {
			allErrs = append(allErrs, field.Forbidden(retentionPath, consts.RetentionRequiresLockErrMessage))
		}
		if spec.Retention.Validity <= 0 {
			allErrs = append(allErrs, field.Invalid(retentionPath.Child("validity"),
				spec.Retention.Validity, consts.InvalidRetentionErrMessage))
		}
		switch spec.Retention.Mode {
		case RetentionCompliance, RetentionGovernance:
		default:
			allErrs = append(allErrs, field.NotSupported(retentionPath.Child("mode"), spec.Retention.Mode,
				[]string{string(RetentionCompliance), string(RetentionGovernance)}))
		}
	}

	return allErrs
}

func validateImmutableFields(oldSpec, newSpec *MinioBucketSpec) field.ErrorList {
	var allErrs field.ErrorList
	specPath := field.NewPath("spec")

	if oldSpec.Name != newSpec.Name {
		allErrs = append(allErrs, field.Invalid(specPath.Child("name"), newSpec.Name, consts.ImmutableFieldErrMessage))
	}
	if oldSpec.Instance != newSpec.Instance {
		allErrs = append(allErrs, field.Invalid(specPath.Child("instance"), newSpec.Instance, consts.ImmutableFieldErrMessage))
	}
	// mc can only enable object locking while making the bucket
	if oldSpec.Lock != newSpec.Lock {
		allErrs = append(allErrs, field.Invalid(specPath.Child("lock"), newSpec.Lock, consts.ImmutableFieldErrMessage))
	}

	return allErrs
}

func validateInstanceExists(ctx context.Context, mb *MinioBucket) field.ErrorList {
	instance := &MinioInstance{}
	err := runtimeClient.Get(ctx, types.NamespacedName{Namespace: mb.Namespace, Name: mb.Spec.Instance}, instance)
	if err == nil {
		return nil
	}

	instancePath := field.NewPath("spec").Child("instance")
	if apierrors.IsNotFound(err) {
		return field.ErrorList{field.NotFound(instancePath, mb.Spec.Instance)}
	}
	miniobucketlog.Error(err, "failed to get minio instance", "instance", mb.Spec.Instance)
	return field.ErrorList{field.InternalError(instancePath, err)}
}

func validateQuota(ctx context.Context, mb *MinioBucket) field.ErrorList {
	quotaPath := field.NewPath("spec").Child("quota")

	if err := validateAgainstNamespaceQuota(ctx, mb); err != nil {
		return field.ErrorList{quotaError(quotaPath, err)}
	}
	if err := validateAgainstClusterQuota(ctx, mb); err != nil {
		return field.ErrorList{quotaError(quotaPath, err)}
	}
	return nil
}

func quotaError(path *field.Path, err error) *field.Error {
	switch err {
	case consts.ErrExceededNamespaceQuota, consts.ErrExceededClusterQuota, consts.ErrQuotaRequired:
		return field.Forbidden(path, err.Error())
	default:
		miniobucketlog.Error(err, "failed to validate quota")
		return field.InternalError(path, err)
	}
}

func validateAgainstNamespaceQuota(ctx context.Context, mb *MinioBucket) error {
	resourceQuotaList := &v1.ResourceQuotaList{}
	if err := runtimeClient.List(ctx, resourceQuotaList, client.InNamespace(mb.Namespace)); err != nil {
		return err
	}

	limited := false
	for _, quota := range resourceQuotaList.Items {
		if _, ok := quota.Spec.Hard[consts.ResourceNameMinioSize]; ok {
			limited = true
		}
	}
	if !limited {
		return nil
	}
	if mb.Spec.Quota == nil {
		return consts.ErrQuotaRequired
	}

	totalSize, err := CalculateNamespaceUsedQuota(ctx, runtimeClient, mb, mb.Namespace, true)
	if err != nil {
		return err
	}
	for _, quota := range resourceQuotaList.Items {
		if maxSize, ok := quota.Spec.Hard[consts.ResourceNameMinioSize]; ok {
			if totalSize.Cmp(maxSize) > 0 {
				return consts.ErrExceededNamespaceQuota
			}
		}
	}

	return nil
}

func validateAgainstClusterQuota(ctx context.Context, mb *MinioBucket) error {
	team, err := findTeam(ctx, runtimeClient, mb)
	if err != nil || team == "" {
		// Namespaces outside a team are only bound by their own quota
		return err
	}

	clusterQuota := &openshiftquota.ClusterResourceQuota{}
	if err := runtimeClient.Get(ctx, types.NamespacedName{Name: team}, clusterQuota); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	maxSize, ok := clusterQuota.Spec.Quota.Hard[consts.ResourceNameMinioSize]
	if !ok {
		return nil
	}
	if mb.Spec.Quota == nil {
		return consts.ErrQuotaRequired
	}

	totalSize, _, err := CalculateClusterUsedQuota(ctx, runtimeClient, mb, true)
	if err != nil {
		return err
	}
	if totalSize.Cmp(maxSize) > 0 {
		return consts.ErrExceededClusterQuota
	}

	return nil
}

func quotaEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
