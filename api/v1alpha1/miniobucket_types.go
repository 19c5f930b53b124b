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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// RetentionMode is the object lock mode applied by default to new objects
// +kubebuilder:validation:Enum=compliance;governance
type RetentionMode string

const (
	// RetentionCompliance prevents any user, including privileged ones, from
	// overwriting or deleting a locked object version.
	RetentionCompliance RetentionMode = "compliance"
	// RetentionGovernance lets privileged users bypass the lock.
	RetentionGovernance RetentionMode = "governance"
)

// BucketRetention is the default retention applied to objects of a locked bucket
type BucketRetention struct {
	// number of days objects are retained
	// +kubebuilder:validation:Minimum=1
	Validity int `json:"validity"`
	// +kubebuilder:default=compliance
	Mode RetentionMode `json:"mode"`
}

// MinioBucketSpec defines the desired state of MinioBucket
type MinioBucketSpec struct {
	// name of the MinioInstance hosting the bucket
	// +kubebuilder:validation:Required
	Instance string `json:"instance"`

	// name of the bucket in MinIO
	// +kubebuilder:validation:Required
	Name string `json:"name"`

	// name of the secret holding the bucket user credentials. It is
	// created with random credentials if it does not exist.
	// +kubebuilder:validation:Required
	Secret string `json:"secret"`

	// +kubebuilder:validation:Optional
	AnonymousReadAccess bool `json:"anonymousReadAccess,omitempty"`

	// +kubebuilder:validation:Optional
	Versioning bool `json:"versioning,omitempty"`

	// max number of bytes the bucket can store, unlimited when unset
	// +kubebuilder:validation:Optional
	Quota *int64 `json:"quota,omitempty"`

	// object locking, can only be enabled when the bucket is created. It
	// implies versioning.
	// +kubebuilder:validation:Optional
	Lock bool `json:"lock,omitempty"`

	// default retention, only applied on locked buckets
	// +kubebuilder:validation:Optional
	Retention *BucketRetention `json:"retention,omitempty"`
}

// ObservedBucketState is the state of the bucket as read back from MinIO
type ObservedBucketState struct {
	Versioning          bool             `json:"versioning"`
	AnonymousReadAccess bool             `json:"anonymousReadAccess"`
	Quota               *int64           `json:"quota,omitempty"`
	QuotaHuman          string           `json:"quotaHuman,omitempty"`
	Retention           *BucketRetention `json:"retention,omitempty"`

	// default retention mode reported by MinIO that is neither compliance nor governance
	UnrecognizedRetentionMode string `json:"unrecognizedRetentionMode,omitempty"`
}

// MinioBucketStatus defines the observed state of MinioBucket
type MinioBucketStatus struct {
	// +kubebuilder:validation:Optional
	// +kubebuilder:default=false
	Ready bool `json:"ready,omitempty"`
	// +kubebuilder:validation:Optional
	Reason string `json:"reason,omitempty"`
	// +kubebuilder:validation:Optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// +kubebuilder:validation:Optional
	Observed *ObservedBucketState `json:"observed,omitempty"`
	// result of an anonymous read probe, set only when probing is enabled
	// +kubebuilder:validation:Optional
	AnonymousReadVerified *bool `json:"anonymousReadVerified,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="BUCKET",type=string,JSONPath=`.spec.name`
// +kubebuilder:printcolumn:name="INSTANCE",type=string,JSONPath=`.spec.instance`
// +kubebuilder:printcolumn:name="READY",type=boolean,JSONPath=`.status.ready`
// +kubebuilder:resource:shortName=mb

// MinioBucket is the Schema for the miniobuckets API
type MinioBucket struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   MinioBucketSpec   `json:"spec,omitempty"`
	Status MinioBucketStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// MinioBucketList contains a list of MinioBucket
type MinioBucketList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []MinioBucket `json:"items"`
}

func init() {
	SchemeBuilder.Register(&MinioBucket{}, &MinioBucketList{})
}
