package miniobucket

import (
	"context"

	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
	"sigs.k8s.io/controller-runtime/pkg/source"

	"github.com/snapp-incubator/minio-bucket-operator/api/v1alpha1"
	"github.com/snapp-incubator/minio-bucket-operator/internal/predicates"
)

// SetupWithManager sets up the controller with the Manager.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.MinioBucket{}, builder.WithPredicates(predicates.NewAppliedObjectPredicate())).
		Watches(
			&source.Kind{Type: &v1alpha1.MinioInstance{}},
			handler.EnqueueRequestsFromMapFunc(r.instanceToBuckets)).
		WithOptions(controller.Options{MaxConcurrentReconciles: 1}).
		Complete(r)
}

// mapLogger is used by event handlers, which run outside the reconcile worker.
var mapLogger = log.Log.WithName("miniobucket").WithName("instance-watch")

func (r *Reconciler) instanceToBuckets(object client.Object) []reconcile.Request {
	instance, ok := object.(*v1alpha1.MinioInstance)
	if !ok {
		return nil
	}

	bucketList := &v1alpha1.MinioBucketList{}
	if err := r.List(context.Background(), bucketList, client.InNamespace(instance.Namespace)); err != nil {
		mapLogger.Error(err, "failed to list minio buckets", "instance", instance.Name)
		return nil
	}

	var requests []reconcile.Request
	for _, bucket := range bucketList.Items {
		if bucket.Spec.Instance != instance.Name {
			continue
		}
		requests = append(requests, reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: bucket.Namespace, Name: bucket.Name},
		})
	}
	return requests
}
