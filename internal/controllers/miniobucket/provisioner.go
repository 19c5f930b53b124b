package miniobucket

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/opdev/subreconciler"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/types"
	genericregistry "k8s.io/apiserver/pkg/registry/generic/registry"
	"k8s.io/utils/pointer"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/snapp-incubator/minio-bucket-operator/api/v1alpha1"
	"github.com/snapp-incubator/minio-bucket-operator/internal/credentials"
	"github.com/snapp-incubator/minio-bucket-operator/internal/mcclient"
	"github.com/snapp-incubator/minio-bucket-operator/internal/minioadmin"
	"github.com/snapp-incubator/minio-bucket-operator/internal/s3_agent"
	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

// Provision converges the MinIO resources backing r.minioBucket
func (r *Reconciler) Provision(ctx context.Context) (ctrl.Result, error) {
	r.minioInstance = nil
	r.service = nil
	r.observed = nil
	r.anonymousReadVerified = nil
	r.policyName = minioadmin.PolicyName(r.minioBucket.Spec.Name)

	subrecs := []subreconciler.Fn{
		r.resolveInstance,
		r.ensureIdentity,
		r.ensureBucket,
		r.ensurePolicy,
		r.ensureUser,
		r.ensurePolicyAttachment,
		r.observeBucket,
		r.verifyAnonymousRead,
		r.updateMinioBucketStatus,
	}
	for _, subrec := range subrecs {
		result, err := subrec(ctx)
		if subreconciler.ShouldHaltOrRequeue(result, err) {
			return subreconciler.Evaluate(result, err)
		}
	}

	return subreconciler.Evaluate(subreconciler.DoNotRequeue())
}

func (r *Reconciler) resolveInstance(ctx context.Context) (*ctrl.Result, error) {
	r.minioInstance = &v1alpha1.MinioInstance{}
	instanceKey := types.NamespacedName{Namespace: r.minioBucket.Namespace, Name: r.minioBucket.Spec.Instance}
	if err := r.Get(ctx, instanceKey, r.minioInstance); err != nil {
		return r.fail(ctx, err, "failed to get minio instance")
	}

	store := &credentials.KubeSecretStore{Client: r.Client, Namespace: r.minioBucket.Namespace}
	data, found, err := store.Get(ctx, r.minioInstance.Spec.Credentials)
	switch {
	case err != nil:
		return r.fail(ctx, err, "failed to get minio instance credentials")
	case !found:
		err := fmt.Errorf("secret %s of minio instance %s not found", r.minioInstance.Spec.Credentials, r.minioInstance.Name)
		return r.fail(ctx, err, "failed to get minio instance credentials")
	}

	target := mcclient.Target{Endpoint: r.minioInstance.Spec.Endpoint}
	if target.AccessKey, err = credentials.ReadString(data, consts.DataKeyAccessKey); err != nil {
		return r.fail(ctx, err, "invalid minio instance credentials")
	}
	if target.SecretKey, err = credentials.ReadString(data, consts.DataKeySecretKey); err != nil {
		return r.fail(ctx, err, "invalid minio instance credentials")
	}

	r.service = minioadmin.NewService(r.transportFactory(target), minioadmin.Options{
		Alias:   r.mcAlias,
		TempDir: r.tempDir,
	})
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) ensureIdentity(ctx context.Context) (*ctrl.Result, error) {
	store := &credentials.KubeSecretStore{
		Client:    r.Client,
		Namespace: r.minioBucket.Namespace,
		Labels:    map[string]string{consts.LabelCreatedBy: r.secretCreatedByLabel},
	}

	user, created, err := credentials.EnsureIdentity(ctx, store, r.minioBucket.Spec.Secret)
	if err != nil {
		return r.fail(ctx, err, "failed to ensure bucket credentials", "secret", r.minioBucket.Spec.Secret)
	}
	if created {
		r.logger.Info("created bucket credentials", "secret", r.minioBucket.Spec.Secret)
	}

	r.user = user
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) ensureBucket(ctx context.Context) (*ctrl.Result, error) {
	if err := r.service.ApplyBucket(ctx, &r.minioBucket.Spec); err != nil {
		return r.fail(ctx, err, "failed to apply bucket")
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) ensurePolicy(ctx context.Context) (*ctrl.Result, error) {
	content, err := minioadmin.RenderBucketPolicy(r.minioBucket.Spec.Name)
	if err != nil {
		return r.fail(ctx, err, "failed to render policy", "policy", r.policyName)
	}
	if err := r.service.ApplyPolicy(ctx, r.policyName, content); err != nil {
		return r.fail(ctx, err, "failed to apply policy", "policy", r.policyName)
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) ensureUser(ctx context.Context) (*ctrl.Result, error) {
	if err := r.service.ApplyUser(ctx, r.user); err != nil {
		return r.fail(ctx, err, "failed to apply user", "user", r.user.Username)
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) ensurePolicyAttachment(ctx context.Context) (*ctrl.Result, error) {
	if err := r.service.AttachPolicy(ctx, r.user.Username, r.policyName); err != nil {
		return r.fail(ctx, err, "failed to attach policy", "user", r.user.Username, "policy", r.policyName)
	}
	return subreconciler.ContinueReconciling()
}

// observeBucket reads the live bucket state back so drift shows up in the status
func (r *Reconciler) observeBucket(ctx context.Context) (*ctrl.Result, error) {
	bucket := r.minioBucket.Spec.Name
	observed := &v1alpha1.ObservedBucketState{}

	var err error
	if observed.Versioning, err = r.service.GetVersioning(ctx, bucket); err != nil {
		return r.fail(ctx, err, "failed to get bucket versioning")
	}
	if observed.AnonymousReadAccess, err = r.service.GetAnonymousAccess(ctx, bucket); err != nil {
		return r.fail(ctx, err, "failed to get bucket anonymous access")
	}
	if observed.Quota, err = r.service.GetQuota(ctx, bucket); err != nil {
		return r.fail(ctx, err, "failed to get bucket quota")
	}
	if observed.Quota != nil {
		observed.QuotaHuman = humanize.IBytes(uint64(*observed.Quota))
	}
	if r.minioBucket.Spec.Lock {
		retention, err := r.service.GetDefaultRetention(ctx, bucket)
		if err != nil {
			return r.fail(ctx, err, "failed to get bucket default retention")
		}
		observed.Retention = retention.Effective()
		if retention.State == minioadmin.RetentionUnrecognized {
			observed.UnrecognizedRetentionMode = retention.RawMode
		}
	}

	r.observed = observed
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) verifyAnonymousRead(ctx context.Context) (*ctrl.Result, error) {
	if !r.verifyAnonymousAccess {
		return subreconciler.ContinueReconciling()
	}

	agent, err := s3_agent.NewAnonymousS3Agent(r.minioInstance.Spec.Endpoint, false)
	if err != nil {
		return r.fail(ctx, err, "failed to create s3 agent")
	}
	readable, err := agent.ProbeAnonymousRead(ctx, r.minioBucket.Spec.Name)
	if err != nil {
		return r.fail(ctx, err, "failed to probe anonymous read access")
	}

	r.anonymousReadVerified = pointer.Bool(readable == r.minioBucket.Spec.AnonymousReadAccess)
	if !*r.anonymousReadVerified {
		err := fmt.Errorf("anonymous read probe returned %t, expected %t", readable, r.minioBucket.Spec.AnonymousReadAccess)
		return r.fail(ctx, err, "anonymous read access mismatch")
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) updateMinioBucketStatus(ctx context.Context) (*ctrl.Result, error) {
	status := v1alpha1.MinioBucketStatus{
		Ready:                 true,
		Reason:                consts.ReasonReady,
		ObservedGeneration:    r.minioBucket.Generation,
		Observed:              r.observed,
		AnonymousReadVerified: r.anonymousReadVerified,
	}

	if err := r.setStatus(ctx, status); err != nil {
		return subreconciler.Requeue()
	}
	r.logger.Info("bucket is ready")
	return subreconciler.ContinueReconciling()
}

// fail logs err, records it as the reason the bucket is not ready and requeues the request
func (r *Reconciler) fail(ctx context.Context, err error, msg string, keysAndValues ...interface{}) (*ctrl.Result, error) {
	r.logger.Error(err, msg, keysAndValues...)

	status := v1alpha1.MinioBucketStatus{
		Ready:                 false,
		Reason:                fmt.Sprintf("%s: %s", msg, err.Error()),
		ObservedGeneration:    r.minioBucket.Generation,
		Observed:              r.minioBucket.Status.Observed,
		AnonymousReadVerified: r.anonymousReadVerified,
	}
	// setStatus logs its own failure and the request is requeued either way.
	_ = r.setStatus(ctx, status)

	return subreconciler.Requeue()
}

func (r *Reconciler) setStatus(ctx context.Context, status v1alpha1.MinioBucketStatus) error {
	if apiequality.Semantic.DeepEqual(r.minioBucket.Status, status) {
		return nil
	}

	r.minioBucket.Status = status
	if err := r.Status().Update(ctx, r.minioBucket); err != nil {
		if strings.Contains(err.Error(), genericregistry.OptimisticLockErrorMsg) {
			r.logger.Info("re-queuing item due to optimistic locking on resource", "error", err.Error())
		} else {
			r.logger.Error(err, "failed to update minio bucket status")
		}
		return err
	}
	return nil
}
