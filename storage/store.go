// Package storage provides the durable key/value abstraction backing the
// authentication core's throttle and session state.
package storage

import "errors"

// ErrNotFound is returned when no value exists for a bucket/key pair.
var ErrNotFound = errors.New("record not found")

// Bucket names used by the authentication core. Other packages must not
// write to these buckets directly.
const (
	BucketAttempts = "login_attempts"
	BucketSession  = "session"
)

// Store defines a durable map of bucket/key to opaque bytes. Implementations
// must be safe for concurrent use from independent call sites.
type Store interface {
	Put(bucket, key string, value []byte) error
	Get(bucket, key string) ([]byte, error)
	Delete(bucket, key string) error
	List(bucket string) ([]string, error)
}
