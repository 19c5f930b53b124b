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

package miniobucket

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/opdev/subreconciler"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/snapp-incubator/minio-bucket-operator/api/v1alpha1"
	"github.com/snapp-incubator/minio-bucket-operator/internal/config"
	"github.com/snapp-incubator/minio-bucket-operator/internal/mcclient"
	"github.com/snapp-incubator/minio-bucket-operator/internal/minioadmin"
)

type Reconciler struct {
	client.Client
	scheme           *runtime.Scheme
	logger           logr.Logger
	transportFactory mcclient.Factory

	// reconcile specific variables
	minioBucket           *v1alpha1.MinioBucket
	minioInstance         *v1alpha1.MinioInstance
	service               *minioadmin.Service
	user                  minioadmin.User
	policyName            string
	observed              *v1alpha1.ObservedBucketState
	anonymousReadVerified *bool

	// configurations
	mcAlias               string
	tempDir               string
	secretCreatedByLabel  string
	verifyAnonymousAccess bool
}

func NewReconciler(mgr manager.Manager, cfg *config.Config, transportFactory mcclient.Factory) *Reconciler {
	return newReconciler(mgr.GetClient(), mgr.GetScheme(), cfg, transportFactory)
}

func newReconciler(c client.Client, scheme *runtime.Scheme, cfg *config.Config, transportFactory mcclient.Factory) *Reconciler {
	return &Reconciler{
		Client:           c,
		scheme:           scheme,
		logger:           log.Log.WithName("miniobucket"),
		transportFactory: transportFactory,

		mcAlias:               cfg.Mc.Alias,
		tempDir:               cfg.Mc.TempDir,
		secretCreatedByLabel:  cfg.SecretCreatedByLabel,
		verifyAnonymousAccess: cfg.VerifyAnonymousAccess,
	}
}

//+kubebuilder:rbac:groups=minio.snappcloud.io,resources=miniobuckets,verbs=get;list;watch
//+kubebuilder:rbac:groups=minio.snappcloud.io,resources=miniobuckets/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=minio.snappcloud.io,resources=minioinstances,verbs=get;list;watch
//+kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create
//+kubebuilder:rbac:groups="",resources=namespaces;resourcequotas,verbs=get;list;watch
//+kubebuilder:rbac:groups=quota.openshift.io,resources=clusterresourcequotas,verbs=get;list;watch

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	r.logger = log.FromContext(ctx)
	r.minioBucket = &v1alpha1.MinioBucket{}

	// Fetch the object
	switch err := r.Get(ctx, req.NamespacedName, r.minioBucket); {
	case apierrors.IsNotFound(err):
		return subreconciler.Evaluate(subreconciler.DoNotRequeue())
	case err != nil:
		r.logger.Error(err, "failed to fetch object")
		return subreconciler.Evaluate(subreconciler.Requeue())
	}

	// Deleting buckets is not supported
	if r.minioBucket.ObjectMeta.DeletionTimestamp != nil {
		return subreconciler.Evaluate(subreconciler.DoNotRequeue())
	}

	r.logger = r.logger.WithValues("bucket", r.minioBucket.Spec.Name)
	return r.Provision(ctx)
}
