package mcclient

import "context"

// Transport runs one mc command against a MinIO cluster and returns its
// JSON records. Arguments exclude the global flags and the alias setup.
type Transport interface {
	Exec(ctx context.Context, args ...string) (Records, error)
}

// Target is a MinIO endpoint and the administrative credentials used to reach it.
type Target struct {
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Factory builds a Transport bound to a target.
type Factory func(Target) Transport
