package miniobucket

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/pointer"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/snapp-incubator/minio-bucket-operator/api/v1alpha1"
	"github.com/snapp-incubator/minio-bucket-operator/internal/config"
	"github.com/snapp-incubator/minio-bucket-operator/internal/mcclient"
	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

var _ = Describe("MinioBucket Reconciler", func() {
	const (
		namespace       = "default"
		instanceName    = "minio"
		adminSecretName = "minio-admin"
		rootAccessKey   = "rootuser"
		rootSecretKey   = "rootpassword"
		bucketObject    = "test-bucket"
		bucketName      = "artifacts"
		userSecretName  = "artifacts-credentials"
	)
	var (
		ctx        = context.Background()
		cfg        config.Config
		cluster    *mcclient.FakeCluster
		k8sClient  client.Client
		reconciler *Reconciler
		bucketKey  = types.NamespacedName{Namespace: namespace, Name: bucketObject}
		request    = ctrl.Request{NamespacedName: bucketKey}
	)

	newInstance := func() *v1alpha1.MinioInstance {
		return &v1alpha1.MinioInstance{
			ObjectMeta: metav1.ObjectMeta{Name: instanceName, Namespace: namespace},
			Spec: v1alpha1.MinioInstanceSpec{
				Endpoint:    "http://minio.default.svc:9000",
				Credentials: adminSecretName,
			},
		}
	}
	newAdminSecret := func(accessKey, secretKey string) *corev1.Secret {
		return &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: adminSecretName, Namespace: namespace},
			Data: map[string][]byte{
				consts.DataKeyAccessKey: []byte(accessKey),
				consts.DataKeySecretKey: []byte(secretKey),
			},
		}
	}
	newBucket := func() *v1alpha1.MinioBucket {
		return &v1alpha1.MinioBucket{
			ObjectMeta: metav1.ObjectMeta{Name: bucketObject, Namespace: namespace, Generation: 1},
			Spec: v1alpha1.MinioBucketSpec{
				Instance:   instanceName,
				Name:       bucketName,
				Secret:     userSecretName,
				Versioning: true,
				Quota:      pointer.Int64(1 << 30),
			},
		}
	}
	setup := func(objects ...client.Object) {
		k8sClient = fake.NewClientBuilder().WithScheme(testScheme).WithObjects(objects...).Build()
		reconciler = newReconciler(k8sClient, testScheme, &cfg, cluster.Factory())
	}
	getBucket := func() *v1alpha1.MinioBucket {
		mb := &v1alpha1.MinioBucket{}
		Expect(k8sClient.Get(ctx, bucketKey, mb)).To(Succeed())
		return mb
	}

	BeforeEach(func() {
		cfg = config.DefaultConfig
		cluster = mcclient.NewFakeCluster(rootAccessKey, rootSecretKey)
	})

	Context("When all referenced resources exist", func() {
		BeforeEach(func() {
			setup(newInstance(), newAdminSecret(rootAccessKey, rootSecretKey), newBucket())
		})

		It("Should provision the bucket and report it ready", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))

			secret := &corev1.Secret{}
			Expect(k8sClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: userSecretName}, secret)).To(Succeed())
			Expect(secret.Labels).To(HaveKeyWithValue(consts.LabelCreatedBy, cfg.SecretCreatedByLabel))
			accessKey := string(secret.Data[consts.DataKeyAccessKey])
			Expect(accessKey).To(HaveLen(consts.BucketAccessKeyLength))
			Expect(secret.Data[consts.DataKeySecretKey]).To(HaveLen(consts.BucketSecretKeyLength))

			bucket, ok := cluster.Bucket(bucketName)
			Expect(ok).To(BeTrue())
			Expect(bucket.Versioning).To(Equal("Enabled"))
			Expect(bucket.Quota).To(Equal(pointer.Int64(1 << 30)))

			policyName := consts.BucketPolicyPrefix + bucketName
			Expect(cluster.Policies).To(HaveKey(policyName))
			Expect(cluster.Users).To(HaveKeyWithValue(accessKey, string(secret.Data[consts.DataKeySecretKey])))
			Expect(cluster.Attachments[accessKey]).To(ConsistOf(policyName))

			mb := getBucket()
			Expect(mb.Status.Ready).To(BeTrue())
			Expect(mb.Status.Reason).To(Equal(consts.ReasonReady))
			Expect(mb.Status.ObservedGeneration).To(Equal(int64(1)))
			Expect(mb.Status.Observed).NotTo(BeNil())
			Expect(mb.Status.Observed.Versioning).To(BeTrue())
			Expect(mb.Status.Observed.AnonymousReadAccess).To(BeFalse())
			Expect(mb.Status.Observed.Quota).To(Equal(pointer.Int64(1 << 30)))
			Expect(mb.Status.Observed.QuotaHuman).To(Equal("1.0 GiB"))
			Expect(mb.Status.Observed.Retention).To(BeNil())
			Expect(mb.Status.AnonymousReadVerified).To(BeNil())
		})

		It("Should converge without changes on the next reconcile", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			secret := &corev1.Secret{}
			Expect(k8sClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: userSecretName}, secret)).To(Succeed())

			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))

			again := &corev1.Secret{}
			Expect(k8sClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: userSecretName}, again)).To(Succeed())
			Expect(again.Data).To(Equal(secret.Data))
			Expect(cluster.Users).To(HaveLen(1))
			Expect(cluster.CallCount("admin policy attach")).To(Equal(1))
			Expect(getBucket().Status.Ready).To(BeTrue())
		})

		It("Should correct drift of the live bucket", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			cluster.Buckets[bucketName].Anonymous = "download"
			cluster.Buckets[bucketName].Quota = nil

			_, err = reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			bucket, _ := cluster.Bucket(bucketName)
			Expect(bucket.Anonymous).To(Equal("private"))
			Expect(bucket.Quota).To(Equal(pointer.Int64(1 << 30)))
		})

		It("Should report the failing step and requeue", func() {
			cluster.InjectError("mb")

			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Requeue).To(BeTrue())

			mb := getBucket()
			Expect(mb.Status.Ready).To(BeFalse())
			Expect(mb.Status.Reason).To(ContainSubstring("failed to apply bucket"))
			Expect(mb.Status.Reason).To(ContainSubstring("make bucket"))
			Expect(cluster.Policies).To(BeEmpty())
			Expect(cluster.Users).To(BeEmpty())
		})

		It("Should recover once the failing step succeeds", func() {
			cluster.InjectError("admin user add")
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Requeue).To(BeTrue())
			Expect(getBucket().Status.Ready).To(BeFalse())

			cluster.Reset()
			result, err = reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))
			Expect(getBucket().Status.Ready).To(BeTrue())
			Expect(getBucket().Status.Reason).To(Equal(consts.ReasonReady))
		})
	})

	Context("When the bucket is locked", func() {
		BeforeEach(func() {
			mb := newBucket()
			mb.Spec.Versioning = false
			mb.Spec.Quota = nil
			mb.Spec.Lock = true
			mb.Spec.Retention = &v1alpha1.BucketRetention{Validity: 10, Mode: v1alpha1.RetentionGovernance}
			setup(newInstance(), newAdminSecret(rootAccessKey, rootSecretKey), mb)
		})

		It("Should enable versioning and observe the default retention", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			bucket, ok := cluster.Bucket(bucketName)
			Expect(ok).To(BeTrue())
			Expect(bucket.Lock).To(BeTrue())
			Expect(bucket.Versioning).To(Equal("Enabled"))

			mb := getBucket()
			Expect(mb.Status.Ready).To(BeTrue())
			Expect(mb.Status.Observed.Versioning).To(BeTrue())
			Expect(mb.Status.Observed.Quota).To(BeNil())
			Expect(mb.Status.Observed.QuotaHuman).To(BeEmpty())
			Expect(mb.Status.Observed.Retention).To(Equal(&v1alpha1.BucketRetention{Validity: 10, Mode: v1alpha1.RetentionGovernance}))
		})

		It("Should surface a retention mode it does not know", func() {
			cluster.InjectOutput("retention info", `{"status":"success","op":"info","enabled":"Enabled","mode":"LEGALHOLD","validity":"5DAYS"}`)

			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))

			mb := getBucket()
			Expect(mb.Status.Ready).To(BeTrue())
			Expect(mb.Status.Observed.Retention).To(BeNil())
			Expect(mb.Status.Observed.UnrecognizedRetentionMode).To(Equal("LEGALHOLD"))
		})
	})

	Context("When the credentials secret already exists", func() {
		const (
			existingAccessKey = "existinguser"
			existingSecretKey = "existingpassword"
		)

		BeforeEach(func() {
			userSecret := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: userSecretName, Namespace: namespace},
				Data: map[string][]byte{
					consts.DataKeyAccessKey: []byte(existingAccessKey),
					consts.DataKeySecretKey: []byte(existingSecretKey),
				},
			}
			setup(newInstance(), newAdminSecret(rootAccessKey, rootSecretKey), newBucket(), userSecret)
		})

		It("Should reuse its credentials", func() {
			_, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			Expect(cluster.Users).To(HaveKeyWithValue(existingAccessKey, existingSecretKey))
			Expect(cluster.Attachments[existingAccessKey]).To(ConsistOf(consts.BucketPolicyPrefix + bucketName))

			secret := &corev1.Secret{}
			Expect(k8sClient.Get(ctx, types.NamespacedName{Namespace: namespace, Name: userSecretName}, secret)).To(Succeed())
			Expect(secret.Labels).NotTo(HaveKey(consts.LabelCreatedBy))
		})
	})

	Context("When the credentials secret is incomplete", func() {
		BeforeEach(func() {
			userSecret := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: userSecretName, Namespace: namespace},
				Data:       map[string][]byte{consts.DataKeyAccessKey: []byte("onlyuser")},
			}
			setup(newInstance(), newAdminSecret(rootAccessKey, rootSecretKey), newBucket(), userSecret)
		})

		It("Should not touch MinIO", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Requeue).To(BeTrue())

			Expect(cluster.Calls()).To(BeEmpty())
			mb := getBucket()
			Expect(mb.Status.Ready).To(BeFalse())
			Expect(mb.Status.Reason).To(ContainSubstring(consts.DataKeySecretKey))
		})
	})

	Context("When the instance does not exist", func() {
		BeforeEach(func() {
			setup(newBucket())
		})

		It("Should report the bucket not ready and requeue", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Requeue).To(BeTrue())

			mb := getBucket()
			Expect(mb.Status.Ready).To(BeFalse())
			Expect(mb.Status.Reason).To(ContainSubstring("failed to get minio instance"))
			Expect(cluster.Calls()).To(BeEmpty())
		})
	})

	Context("When the instance credentials secret does not exist", func() {
		BeforeEach(func() {
			setup(newInstance(), newBucket())
		})

		It("Should report the missing secret", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Requeue).To(BeTrue())

			mb := getBucket()
			Expect(mb.Status.Ready).To(BeFalse())
			Expect(mb.Status.Reason).To(ContainSubstring(fmt.Sprintf("secret %s of minio instance %s not found", adminSecretName, instanceName)))
		})
	})

	Context("When the instance credentials are rejected", func() {
		BeforeEach(func() {
			setup(newInstance(), newAdminSecret(rootAccessKey, "wrong"), newBucket())
		})

		It("Should report the failure and create nothing", func() {
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Requeue).To(BeTrue())

			Expect(getBucket().Status.Ready).To(BeFalse())
			Expect(cluster.Buckets).To(BeEmpty())
			Expect(cluster.Users).To(BeEmpty())
		})
	})

	Context("When the bucket object is gone or deleting", func() {
		It("Should ignore a missing object", func() {
			setup()
			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))
			Expect(cluster.Calls()).To(BeEmpty())
		})

		It("Should ignore an object being deleted", func() {
			mb := newBucket()
			mb.Finalizers = []string{"example.com/hold"}
			mb.DeletionTimestamp = &metav1.Time{Time: time.Now()}
			setup(newInstance(), newAdminSecret(rootAccessKey, rootSecretKey), mb)

			result, err := reconciler.Reconcile(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(ctrl.Result{}))
			Expect(cluster.Calls()).To(BeEmpty())
		})
	})

	Context("When an instance changes", func() {
		It("Should enqueue the buckets hosted on it", func() {
			other := newBucket()
			other.Name = "other-bucket"
			other.Spec.Instance = "other-instance"
			elsewhere := newBucket()
			elsewhere.Namespace = "elsewhere"
			setup(newInstance(), newBucket(), other, elsewhere)

			requests := reconciler.instanceToBuckets(newInstance())
			Expect(requests).To(ConsistOf(request))
		})

		It("Should map nothing when buckets cannot be listed while reconciling", func() {
			// Neither the list nor the get can resolve the MinioBucket kind.
			k8sClient = fake.NewClientBuilder().WithScheme(runtime.NewScheme()).Build()
			reconciler = newReconciler(k8sClient, testScheme, &cfg, cluster.Factory())

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := 0; i < 20; i++ {
					_, err := reconciler.Reconcile(ctx, request)
					Expect(err).NotTo(HaveOccurred())
				}
			}()
			for i := 0; i < 20; i++ {
				Expect(reconciler.instanceToBuckets(newInstance())).To(BeEmpty())
			}
			wg.Wait()
		})
	})
})
