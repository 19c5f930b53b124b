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

// MinioInstanceSpec defines how to reach a MinIO cluster
type MinioInstanceSpec struct {
	// URL of the MinIO S3 endpoint, e.g. http://minio.minio.svc:9000
	// +kubebuilder:validation:Required
	Endpoint string `json:"endpoint"`

	// Name of the secret holding the administrative accessKey and secretKey
	// +kubebuilder:validation:Required
	Credentials string `json:"credentials"`
}

//+kubebuilder:object:root=true
// +kubebuilder:printcolumn:name="ENDPOINT",type=string,JSONPath=`.spec.endpoint`
// +kubebuilder:resource:shortName=mi

// MinioInstance is the Schema for the minioinstances API
type MinioInstance struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec MinioInstanceSpec `json:"spec,omitempty"`
}

//+kubebuilder:object:root=true

// MinioInstanceList contains a list of MinioInstance
type MinioInstanceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []MinioInstance `json:"items"`
}

func init() {
	SchemeBuilder.Register(&MinioInstance{}, &MinioInstanceList{})
}
