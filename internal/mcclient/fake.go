package mcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var builtinPolicies = []string{"consoleAdmin", "diagnostics", "readonly", "readwrite", "writeonly"}

type FakeRetention struct {
	Mode     string
	Validity string
}

type FakeBucket struct {
	Lock       bool
	Versioning string
	Anonymous  string
	Quota      *int64
	Retention  *FakeRetention
}

// FakeCluster is an in-memory MinIO that understands the subset of mc
// commands the operator issues. It answers with the JSON lines mc would print.
type FakeCluster struct {
	AccessKey string
	SecretKey string
	Alias     string

	mu          sync.Mutex
	Buckets     map[string]*FakeBucket
	Policies    map[string]json.RawMessage
	Users       map[string]string
	Attachments map[string][]string

	calls    [][]string
	outputs  map[string]string
	failures map[string]bool
}

// NewFakeCluster returns an empty cluster accepting the given root credentials.
func NewFakeCluster(accessKey, secretKey string) *FakeCluster {
	return &FakeCluster{
		AccessKey:   accessKey,
		SecretKey:   secretKey,
		Alias:       DefaultAlias,
		Buckets:     map[string]*FakeBucket{},
		Policies:    map[string]json.RawMessage{},
		Users:       map[string]string{},
		Attachments: map[string][]string{},
		outputs:     map[string]string{},
		failures:    map[string]bool{},
	}
}

// Factory returns transports bound to the cluster. Targets with wrong
// credentials fail the way a rejected alias does.
func (f *FakeCluster) Factory() Factory {
	return func(target Target) Transport {
		return &fakeTransport{cluster: f, target: target}
	}
}

func (f *FakeCluster) Exec(ctx context.Context, args ...string) (Records, error) {
	return f.exec(ctx, args)
}

// InjectOutput makes every following command of the family print out and exit 0.
func (f *FakeCluster) InjectOutput(family, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[family] = out
}

// InjectStatus makes every following command of the family report status.
func (f *FakeCluster) InjectStatus(family, status string) {
	f.InjectOutput(family, fmt.Sprintf(`{"status":%q}`, status))
}

// InjectError makes every following command of the family exit non-zero.
func (f *FakeCluster) InjectError(family string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[family] = true
}

func (f *FakeCluster) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = map[string]string{}
	f.failures = map[string]bool{}
	f.calls = nil
}

// Calls returns the argument lists received so far.
func (f *FakeCluster) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CallCount returns how many commands of the family were received.
func (f *FakeCluster) CallCount(family string) int {
	n := 0
	for _, c := range f.Calls() {
		if CommandFamily(f.Alias, c) == family {
			n++
		}
	}
	return n
}

func (f *FakeCluster) Bucket(name string) (FakeBucket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.Buckets[name]
	if !ok {
		return FakeBucket{}, false
	}
	return *b, true
}

type fakeTransport struct {
	cluster *FakeCluster
	target  Target
}

func (t *fakeTransport) Exec(ctx context.Context, args ...string) (Records, error) {
	c := t.cluster
	if (c.AccessKey != "" && t.target.AccessKey != c.AccessKey) ||
		(c.SecretKey != "" && t.target.SecretKey != c.SecretKey) {
		return nil, &CommandError{
			Kind:     ErrAuthContextFailed,
			Command:  "alias set",
			ExitCode: 1,
			Stderr:   "The Access Key Id you provided does not exist in our records.",
		}
	}
	return c.exec(ctx, args)
}

func (f *FakeCluster) exec(ctx context.Context, args []string) (Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), args...))
	family := CommandFamily(f.Alias, args)

	if f.failures[family] {
		return nil, commandFailed(family, "injected failure")
	}
	if out, ok := f.outputs[family]; ok {
		return ParseRecords([]byte(out))
	}

	lines, err := f.handle(family, args)
	if err != nil {
		return nil, err
	}
	return ParseRecords([]byte(strings.Join(lines, "\n")))
}

func (f *FakeCluster) handle(family string, args []string) ([]string, error) {
	switch family {
	case "ls":
		names := make([]string, 0, len(f.Buckets))
		for name := range f.Buckets {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, jsonLine(map[string]any{"status": "success", "type": "folder", "key": name + "/"}))
		}
		return lines, nil

	case "mb":
		name, err := f.bucketName(args[1])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		if _, ok := f.Buckets[name]; !ok {
			f.Buckets[name] = &FakeBucket{Lock: hasFlag(args, "--with-lock"), Anonymous: "private"}
			if f.Buckets[name].Lock {
				f.Buckets[name].Versioning = "Enabled"
			}
		}
		return success(), nil

	case "version enable", "version suspend", "version info":
		b, err := f.bucket(args[2])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		switch args[1] {
		case "enable":
			b.Versioning = "Enabled"
		case "suspend":
			if b.Lock {
				return nil, commandFailed(family, "An Object Lock configuration is present on this bucket, so the versioning state cannot be changed.")
			}
			if b.Versioning != "" {
				b.Versioning = "Suspended"
			}
		default:
			return []string{jsonLine(map[string]any{
				"status": "success", "op": "info", "versioning": map[string]any{"status": b.Versioning},
			})}, nil
		}
		return success(), nil

	case "anonymous set":
		b, err := f.bucket(strings.TrimSuffix(args[3], "/*"))
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		b.Anonymous = args[2]
		return success(), nil

	case "anonymous get":
		b, err := f.bucket(strings.TrimSuffix(args[2], "/*"))
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		return []string{jsonLine(map[string]any{"status": "success", "permission": b.Anonymous})}, nil

	case "quota set":
		b, err := f.bucket(args[2])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		size, err := strconv.ParseInt(strings.TrimSuffix(flagValue(args, "--size"), "B"), 10, 64)
		if err != nil {
			return nil, commandFailed(family, "invalid size")
		}
		b.Quota = &size
		return success(), nil

	case "quota clear":
		b, err := f.bucket(args[2])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		b.Quota = nil
		return success(), nil

	case "quota info":
		b, err := f.bucket(args[2])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		record := map[string]any{"status": "success", "bucket": strings.TrimPrefix(args[2], f.Alias+"/")}
		if b.Quota != nil {
			record["quota"] = *b.Quota
			record["type"] = "hard"
		}
		return []string{jsonLine(record)}, nil

	case "retention set":
		b, err := f.bucket(args[len(args)-1])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		if !b.Lock {
			return nil, commandFailed(family, "Bucket is missing ObjectLockConfiguration")
		}
		b.Retention = &FakeRetention{
			Mode:     strings.ToUpper(args[3]),
			Validity: strings.ToUpper(strings.TrimSuffix(args[4], "d")) + "DAYS",
		}
		return success(), nil

	case "retention clear":
		b, err := f.bucket(args[len(args)-1])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		if !b.Lock {
			return nil, commandFailed(family, "Bucket is missing ObjectLockConfiguration")
		}
		b.Retention = nil
		return success(), nil

	case "retention info":
		b, err := f.bucket(args[2])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		record := map[string]any{"status": "success", "op": "info"}
		if b.Lock {
			record["enabled"] = "Enabled"
		}
		if b.Retention != nil {
			record["mode"] = b.Retention.Mode
			record["validity"] = b.Retention.Validity
		}
		return []string{jsonLine(record)}, nil

	case "admin policy create":
		content, err := os.ReadFile(args[5])
		if err != nil {
			return nil, commandFailed(family, err.Error())
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, content); err != nil {
			return nil, commandFailed(family, "invalid policy document")
		}
		f.Policies[args[4]] = json.RawMessage(compact.Bytes())
		return success(), nil

	case "admin policy list":
		names := append([]string(nil), builtinPolicies...)
		for name := range f.Policies {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, jsonLine(map[string]any{"status": "success", "policy": name, "isGroup": false}))
		}
		return lines, nil

	case "admin policy info":
		doc, ok := f.Policies[args[4]]
		if !ok {
			return nil, commandFailed(family, "The canned policy does not exist")
		}
		return []string{jsonLine(map[string]any{
			"status": "success", "policy": args[4],
			"policyInfo": map[string]any{"PolicyName": args[4], "Policy": doc},
		})}, nil

	case "admin policy attach":
		policy, user := args[4], flagValue(args, "--user")
		if _, ok := f.Users[user]; !ok {
			return nil, commandFailed(family, "The specified user does not exist")
		}
		if _, ok := f.Policies[policy]; !ok {
			return nil, commandFailed(family, "The canned policy does not exist")
		}
		for _, p := range f.Attachments[user] {
			if p == policy {
				return nil, commandFailed(family, "The specified policy change is already in effect.")
			}
		}
		f.Attachments[user] = append(f.Attachments[user], policy)
		return success(), nil

	case "admin policy entities":
		user := flagValue(args, "--user")
		result := map[string]any{}
		if policies := f.Attachments[user]; len(policies) > 0 {
			result["userMappings"] = []map[string]any{{"user": user, "policies": policies}}
		}
		return []string{jsonLine(map[string]any{"status": "success", "result": result})}, nil

	case "admin user add":
		f.Users[args[4]] = args[5]
		return []string{jsonLine(map[string]any{"status": "success", "accessKey": args[4], "userStatus": "enabled"})}, nil

	case "admin user list":
		names := make([]string, 0, len(f.Users))
		for name := range f.Users {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, jsonLine(map[string]any{"status": "success", "accessKey": name, "userStatus": "enabled"}))
		}
		return lines, nil
	}

	return nil, commandFailed(family, "unsupported command")
}

func (f *FakeCluster) bucketName(target string) (string, error) {
	name, ok := strings.CutPrefix(target, f.Alias+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid target %q", target)
	}
	return name, nil
}

func (f *FakeCluster) bucket(target string) (*FakeBucket, error) {
	name, err := f.bucketName(target)
	if err != nil {
		return nil, err
	}
	b, ok := f.Buckets[name]
	if !ok {
		return nil, fmt.Errorf("bucket %q does not exist", name)
	}
	return b, nil
}

func commandFailed(family, message string) error {
	return &CommandError{
		Kind:     ErrCommandFailed,
		Command:  family,
		ExitCode: 1,
		Stdout:   jsonLine(map[string]any{"status": "error", "error": map[string]any{"message": message}}),
	}
}

func success() []string {
	return []string{`{"status":"success"}`}
}

func jsonLine(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(out)
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
