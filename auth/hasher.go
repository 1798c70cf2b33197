package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/nvelasco/campusd/internal/util"
	"golang.org/x/crypto/argon2"
)

// SaltLength is the salt size in bytes for new credential records.
const SaltLength = 32

// Credential record schemes. New records are always written as argon2id;
// legacy records (a bare salt:digest pair, single-pass SHA-256) remain
// verifiable so existing accounts keep working until their next password
// change regenerates the record.
const (
	schemeArgon2id = "argon2id"
	schemeSHA256   = "sha256"
)

// Argon2idParams configures the credential KDF work factor. The parameters
// are stored inside each record, so they can be raised later without
// breaking verification of old records.
type Argon2idParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	KeyLen      uint32
}

// DefaultArgon2idParams returns the production default work factor.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// CredentialRecord is the storable salted-hash representation of a secret.
// It is immutable once created and regenerated wholesale on password change.
type CredentialRecord struct {
	Scheme string
	Params Argon2idParams
	Salt   []byte
	Digest []byte
}

// String encodes the record as a single storable string:
//
//	argon2id:<time>:<memoryKiB>:<parallelism>:<b64 salt>:<b64 digest>
func (r CredentialRecord) String() string {
	return strings.Join([]string{
		r.Scheme,
		strconv.FormatUint(uint64(r.Params.Time), 10),
		strconv.FormatUint(uint64(r.Params.MemoryKiB), 10),
		strconv.FormatUint(uint64(r.Params.Parallelism), 10),
		base64.StdEncoding.EncodeToString(r.Salt),
		base64.StdEncoding.EncodeToString(r.Digest),
	}, ":")
}

// ParseCredentialRecord decodes a stored credential string. Two layouts are
// accepted: the versioned argon2id form produced by String, and the legacy
// two-part "b64(salt):b64(digest)" SHA-256 form.
func ParseCredentialRecord(s string) (CredentialRecord, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		salt, err := base64.StdEncoding.DecodeString(parts[0])
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("decoding legacy salt: %w", err)
		}
		digest, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("decoding legacy digest: %w", err)
		}
		return CredentialRecord{Scheme: schemeSHA256, Salt: salt, Digest: digest}, nil
	case 6:
		if parts[0] != schemeArgon2id {
			return CredentialRecord{}, fmt.Errorf("unknown credential scheme %q", parts[0])
		}
		t, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("parsing time parameter: %w", err)
		}
		m, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("parsing memory parameter: %w", err)
		}
		p, err := strconv.ParseUint(parts[3], 10, 8)
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("parsing parallelism parameter: %w", err)
		}
		salt, err := base64.StdEncoding.DecodeString(parts[4])
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("decoding salt: %w", err)
		}
		digest, err := base64.StdEncoding.DecodeString(parts[5])
		if err != nil {
			return CredentialRecord{}, fmt.Errorf("decoding digest: %w", err)
		}
		return CredentialRecord{
			Scheme: schemeArgon2id,
			Params: Argon2idParams{
				Time:        uint32(t),
				MemoryKiB:   uint32(m),
				Parallelism: uint8(p),
				KeyLen:      uint32(len(digest)),
			},
			Salt:   salt,
			Digest: digest,
		}, nil
	default:
		return CredentialRecord{}, fmt.Errorf("malformed credential record: %d parts", len(parts))
	}
}

// Hasher produces and verifies credential records. It is stateless apart
// from its configured work factor and safe for concurrent use.
type Hasher struct {
	params Argon2idParams
}

// NewHasher returns a Hasher with the given Argon2id work factor. Zero-value
// params select the default.
func NewHasher(params Argon2idParams) *Hasher {
	if params == (Argon2idParams{}) {
		params = DefaultArgon2idParams()
	}
	return &Hasher{params: params}
}

// Hash derives a new credential record for the given secret. It fails only
// when the system random source is unavailable, never on input shape.
func (h *Hasher) Hash(secret string) (CredentialRecord, error) {
	salt, err := util.RandomBytes(SaltLength)
	if err != nil {
		return CredentialRecord{}, fmt.Errorf("%w: %v", ErrHashUnavailable, err)
	}
	digest := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLen)
	return CredentialRecord{
		Scheme: schemeArgon2id,
		Params: h.params,
		Salt:   salt,
		Digest: digest,
	}, nil
}

// Verify checks a secret against a stored credential string. It fails
// closed: any malformed stored record verifies as false. The comparison is
// constant-time over the digest bytes.
func (h *Hasher) Verify(secret, stored string) bool {
	rec, err := ParseCredentialRecord(stored)
	if err != nil {
		return false
	}

	var computed []byte
	switch rec.Scheme {
	case schemeArgon2id:
		if rec.Params.KeyLen == 0 || rec.Params.Time == 0 || rec.Params.Parallelism == 0 {
			return false
		}
		computed = argon2.IDKey([]byte(secret), rec.Salt, rec.Params.Time, rec.Params.MemoryKiB, rec.Params.Parallelism, rec.Params.KeyLen)
	case schemeSHA256:
		d := sha256.New()
		d.Write(rec.Salt)
		d.Write([]byte(secret))
		computed = d.Sum(nil)
	default:
		return false
	}
	defer memguard.WipeBytes(computed)

	return subtle.ConstantTimeCompare(computed, rec.Digest) == 1
}
