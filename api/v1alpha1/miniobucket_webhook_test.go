package v1alpha1

import (
	"context"
	goerrors "errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	openshiftquota "github.com/openshift/api/quota/v1"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/pointer"

	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

var _ = Describe("MinioBucket webhook", func() {
	const (
		teamName     = "test-team"
		instanceName = "minio"
	)

	var (
		targetNamespaces = []string{
			"miniobucket-webhook-test-1",
			"miniobucket-webhook-test-2",
		}
		ctx = context.Background()
	)

	expectInvalid := func(err error, substr string) {
		var apiStatus apierrors.APIStatus
		ExpectWithOffset(1, goerrors.As(err, &apiStatus)).To(BeTrue())
		ExpectWithOffset(1, apiStatus.Status().Code).To(Equal(int32(http.StatusUnprocessableEntity)))
		ExpectWithOffset(1, apiStatus.Status().Message).To(ContainSubstring(substr))
	}

	store := func(mb *MinioBucket) {
		Expect(runtimeClient.Create(ctx, mb)).To(Succeed())
	}

	BeforeEach(func() {
		for _, ns := range targetNamespaces {
			Expect(runtimeClient.Create(ctx, &v1.Namespace{
				ObjectMeta: metav1.ObjectMeta{
					Name:   ns,
					Labels: map[string]string{consts.LabelTeam: teamName},
				},
			})).To(Succeed())
			Expect(runtimeClient.Create(ctx, &MinioInstance{
				ObjectMeta: metav1.ObjectMeta{Name: instanceName, Namespace: ns},
				Spec:       MinioInstanceSpec{Endpoint: "http://minio:9000", Credentials: "minio-admin"},
			})).To(Succeed())
		}
	})

	Context("When validating the spec", func() {
		It("Should allow a plain bucket", func() {
			Expect(getMinioBucket("plain", targetNamespaces[0], nil).ValidateCreate()).To(Succeed())
		})

		It("Should deny retention without lock", func() {
			mb := getMinioBucket("retention", targetNamespaces[0], nil)
			mb.Spec.Retention = &BucketRetention{Validity: 10, Mode: RetentionGovernance}
			expectInvalid(mb.ValidateCreate(), consts.RetentionRequiresLockErrMessage)
		})

		It("Should allow retention on a locked bucket", func() {
			mb := getMinioBucket("locked", targetNamespaces[0], nil)
			mb.Spec.Lock = true
			mb.Spec.Retention = &BucketRetention{Validity: 10, Mode: RetentionGovernance}
			Expect(mb.ValidateCreate()).To(Succeed())
		})

		It("Should deny a non positive validity", func() {
			mb := getMinioBucket("validity", targetNamespaces[0], nil)
			mb.Spec.Lock = true
			mb.Spec.Retention = &BucketRetention{Validity: 0, Mode: RetentionCompliance}
			expectInvalid(mb.ValidateCreate(), consts.InvalidRetentionErrMessage)
		})

		It("Should deny an unknown retention mode", func() {
			mb := getMinioBucket("mode", targetNamespaces[0], nil)
			mb.Spec.Lock = true
			mb.Spec.Retention = &BucketRetention{Validity: 1, Mode: "legal-hold"}
			expectInvalid(mb.ValidateCreate(), "spec.retention.mode")
		})

		It("Should deny a negative quota", func() {
			mb := getMinioBucket("negative", targetNamespaces[0], pointer.Int64(-1))
			expectInvalid(mb.ValidateCreate(), consts.NegativeQuotaErrMessage)
		})

		It("Should deny a missing instance", func() {
			mb := getMinioBucket("orphan", targetNamespaces[0], nil)
			mb.Spec.Instance = "unknown"
			expectInvalid(mb.ValidateCreate(), "spec.instance")
		})
	})

	Context("When updating MinioBucket", func() {
		It("Should deny changing immutable fields", func() {
			old := getMinioBucket("immutable", targetNamespaces[0], nil)

			renamed := old.DeepCopy()
			renamed.Spec.Name = "other"
			expectInvalid(renamed.ValidateUpdate(old), "spec.name")

			moved := old.DeepCopy()
			moved.Spec.Instance = "other"
			expectInvalid(moved.ValidateUpdate(old), "spec.instance")

			locked := old.DeepCopy()
			locked.Spec.Lock = true
			expectInvalid(locked.ValidateUpdate(old), consts.ImmutableFieldErrMessage)
		})

		It("Should allow changing mutable fields", func() {
			old := getMinioBucket("mutable", targetNamespaces[0], nil)
			updated := old.DeepCopy()
			updated.Spec.Versioning = true
			updated.Spec.AnonymousReadAccess = true
			updated.Spec.Quota = pointer.Int64(1024)
			Expect(updated.ValidateUpdate(old)).To(Succeed())
		})
	})

	Context("When the namespace has a minio/size quota", func() {
		BeforeEach(func() {
			Expect(runtimeClient.Create(ctx, &v1.ResourceQuota{
				ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: targetNamespaces[0]},
				Spec: v1.ResourceQuotaSpec{
					Hard: v1.ResourceList{consts.ResourceNameMinioSize: resource.MustParse("3k")},
				},
			})).To(Succeed())
		})

		It("Should deny a bucket without quota", func() {
			mb := getMinioBucket("unlimited", targetNamespaces[0], nil)
			expectInvalid(mb.ValidateCreate(), consts.QuotaRequiredErrMessage)
		})

		It("Should deny creating if total quota exceeds namespace quota", func() {
			store(getMinioBucket("first", targetNamespaces[0], pointer.Int64(2000)))

			err := getMinioBucket("second", targetNamespaces[0], pointer.Int64(2000)).ValidateCreate()
			expectInvalid(err, consts.ErrExceededNamespaceQuota.Error())
			Expect(err.Error()).NotTo(ContainSubstring(consts.ErrExceededClusterQuota.Error()))
		})

		It("Should deny updating if total quota exceeds namespace quota", func() {
			store(getMinioBucket("first", targetNamespaces[0], pointer.Int64(2000)))
			second := getMinioBucket("second", targetNamespaces[0], pointer.Int64(500))
			store(second)

			updated := second.DeepCopy()
			updated.Spec.Quota = pointer.Int64(2000)
			expectInvalid(updated.ValidateUpdate(second), consts.ErrExceededNamespaceQuota.Error())
		})

		It("Should not count the stored version of the updated bucket", func() {
			first := getMinioBucket("first", targetNamespaces[0], pointer.Int64(2000))
			store(first)

			updated := first.DeepCopy()
			updated.Spec.Quota = pointer.Int64(3000)
			Expect(updated.ValidateUpdate(first)).To(Succeed())
		})
	})

	Context("When the team has a ClusterResourceQuota", func() {
		BeforeEach(func() {
			Expect(runtimeClient.Create(ctx, &openshiftquota.ClusterResourceQuota{
				ObjectMeta: metav1.ObjectMeta{Name: teamName},
				Spec: openshiftquota.ClusterResourceQuotaSpec{
					Selector: openshiftquota.ClusterResourceQuotaSelector{
						LabelSelector: &metav1.LabelSelector{
							MatchLabels: map[string]string{consts.LabelTeam: teamName},
						},
					},
					Quota: v1.ResourceQuotaSpec{
						Hard: v1.ResourceList{consts.ResourceNameMinioSize: resource.MustParse("5k")},
					},
				},
			})).To(Succeed())
		})

		It("Should deny creating if total quota exceeds cluster quota", func() {
			store(getMinioBucket("first", targetNamespaces[0], pointer.Int64(3000)))

			err := getMinioBucket("second", targetNamespaces[1], pointer.Int64(3000)).ValidateCreate()
			expectInvalid(err, consts.ErrExceededClusterQuota.Error())
			Expect(err.Error()).NotTo(ContainSubstring(consts.ErrExceededNamespaceQuota.Error()))
		})

		It("Should allow creating if total quota doesn't exceed any quota", func() {
			store(getMinioBucket("first", targetNamespaces[0], pointer.Int64(2000)))

			Expect(getMinioBucket("second", targetNamespaces[1], pointer.Int64(2000)).ValidateCreate()).To(Succeed())
		})

		It("Should report the aggregated team usage", func() {
			store(getMinioBucket("first", targetNamespaces[0], pointer.Int64(2000)))
			store(getMinioBucket("second", targetNamespaces[1], pointer.Int64(1000)))

			total, team, err := CalculateClusterUsedQuota(ctx, runtimeClient,
				getMinioBucket("third", targetNamespaces[1], pointer.Int64(500)), true)
			Expect(err).NotTo(HaveOccurred())
			Expect(team).To(Equal(teamName))
			Expect(total.Value()).To(Equal(int64(3500)))
		})
	})
})

func getMinioBucket(name, namespace string, quota *int64) *MinioBucket {
	return &MinioBucket{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Spec: MinioBucketSpec{
			Instance: "minio",
			Name:     name,
			Secret:   name + "-credentials",
			Quota:    quota,
		},
	}
}
