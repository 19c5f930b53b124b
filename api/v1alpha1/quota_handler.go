package v1alpha1

import (
	"context"
	"fmt"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

// CalculateNamespaceUsedQuota sums the quota of all MinioBuckets in the namespace. The stored
// version of mb is skipped and its desired quota is added instead when addCurrentQuota is set.
func CalculateNamespaceUsedQuota(ctx context.Context, reader client.Reader,
	mb *MinioBucket, namespace string, addCurrentQuota bool) (*resource.Quantity, error) {
	total := resource.NewQuantity(0, resource.BinarySI)
	if mb == nil {
		return total, fmt.Errorf("minio bucket pointer is nil")
	}

	bucketList := &MinioBucketList{}
	if err := reader.List(ctx, bucketList, client.InNamespace(namespace)); err != nil {
		return total, fmt.Errorf("failed to list minio buckets, %w", err)
	}

	for _, bucket := range bucketList.Items {
		if bucket.Name == mb.Name && bucket.Namespace == mb.Namespace {
			continue
		}
		addBucketQuota(total, &bucket)
	}
	if addCurrentQuota {
		addBucketQuota(total, mb)
	}
	return total, nil
}

// CalculateClusterUsedQuota sums the quota of all MinioBuckets in the namespaces of the team
// owning mb's namespace. It returns the team name as well.
func CalculateClusterUsedQuota(ctx context.Context, reader client.Reader,
	mb *MinioBucket, addCurrentQuota bool) (*resource.Quantity, string, error) {
	total := resource.NewQuantity(0, resource.BinarySI)
	team, err := findTeam(ctx, reader, mb)
	if err != nil {
		return total, "", fmt.Errorf("failed to find team, %w", err)
	}

	namespaces, err := findTeamNamespaces(ctx, reader, team)
	if err != nil {
		return total, team, fmt.Errorf("failed to find team namespaces, %w", err)
	}
	for _, ns := range namespaces {
		nsTotal, err := CalculateNamespaceUsedQuota(ctx, reader, mb, ns, false)
		if err != nil {
			return total, team, err
		}
		total.Add(*nsTotal)
	}
	if addCurrentQuota {
		addBucketQuota(total, mb)
	}
	return total, team, nil
}

func addBucketQuota(total *resource.Quantity, mb *MinioBucket) {
	if mb.Spec.Quota != nil {
		total.Add(*resource.NewQuantity(*mb.Spec.Quota, resource.BinarySI))
	}
}

func findTeam(ctx context.Context, reader client.Reader, mb *MinioBucket) (string, error) {
	ns := &v1.Namespace{}
	if err := reader.Get(ctx, types.NamespacedName{Name: mb.ObjectMeta.Namespace}, ns); err != nil {
		return "", fmt.Errorf("failed to get namespace, %w", err)
	}

	team, ok := ns.ObjectMeta.Labels[consts.LabelTeam]
	if !ok {
		return "", nil
	}

	return team, nil
}

func findTeamNamespaces(ctx context.Context, reader client.Reader, team string) ([]string, error) {
	var namespaces []string

	namespaceList := &v1.NamespaceList{}
	if err := reader.List(ctx, namespaceList); err != nil {
		return namespaces, fmt.Errorf("failed to list namespaces, %w", err)
	}

	for _, ns := range namespaceList.Items {
		if nsTeam, ok := ns.ObjectMeta.Labels[consts.LabelTeam]; ok && nsTeam == team {
			namespaces = append(namespaces, ns.ObjectMeta.Name)
		}
	}

	return namespaces, nil
}
