package minioadmin

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"text/template"

	"github.com/snapp-incubator/minio-bucket-operator/pkg/consts"
)

var (
	//go:embed policy_template.json
	bucketPolicyTemplateContent string

	bucketPolicyTemplate = template.Must(template.New("bucket-policy").Parse(bucketPolicyTemplateContent))
)

// PolicyName is the name of the policy granting access to a single bucket.
func PolicyName(bucket string) string {
	return consts.BucketPolicyPrefix + bucket
}

// RenderBucketPolicy returns the policy document granting read/write access to the bucket objects.
func RenderBucketPolicy(bucket string) (string, error) {
	var buf bytes.Buffer
	if err := bucketPolicyTemplate.Execute(&buf, struct{ Bucket string }{Bucket: bucket}); err != nil {
		return "", fmt.Errorf("failed to render policy of bucket %s, %w", bucket, err)
	}
	return buf.String(), nil
}

// ApplyPolicy creates or replaces the named policy.
func (s *Service) ApplyPolicy(ctx context.Context, name, content string) error {
	f, err := os.CreateTemp(s.tempDir, "policy-*.json")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrApplyPolicyFailed, err)
	}
	defer os.Remove(f.Name())

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrApplyPolicyFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrApplyPolicyFailed, err)
	}

	return s.action(ctx, ErrApplyPolicyFailed, "admin", "policy", "create", s.alias, name, f.Name())
}

type policyEntry struct {
	Policy string `json:"policy"`
}

func (s *Service) ListPolicies(ctx context.Context) ([]string, error) {
	entries, err := queryAll[policyEntry](ctx, s, "admin", "policy", "list", s.alias)
	if err != nil {
		return nil, err
	}

	policies := make([]string, 0, len(entries))
	for _, e := range entries {
		policies = append(policies, e.Policy)
	}
	return policies, nil
}

type policyInfo struct {
	PolicyInfo struct {
		Policy json.RawMessage `json:"Policy"`
	} `json:"policyInfo"`
}

// PolicyContent returns the stored policy document, re-serialized with sorted keys and no whitespace.
func (s *Service) PolicyContent(ctx context.Context, name string) (string, error) {
	info, err := query[policyInfo](ctx, s, "admin", "policy", "info", s.alias, name)
	if err != nil {
		return "", err
	}
	return CanonicalPolicy(info.PolicyInfo.Policy)
}

// CanonicalPolicy re-serializes a policy document so two equivalent documents compare equal.
func CanonicalPolicy(doc []byte) (string, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return "", fmt.Errorf("failed to parse policy document, %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
