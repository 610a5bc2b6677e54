package domain

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ContentHash is the BLAKE3 digest of a deployment's content.
type ContentHash [32]byte

// HashContent digests raw deployment content.
func HashContent(data []byte) ContentHash {
	return ContentHash(blake3.Sum256(data))
}

func (h ContentHash) String() string { return hex.EncodeToString(h[:]) }

func (h ContentHash) IsZero() bool { return h == ContentHash{} }

// ParseContentHash decodes the hex form produced by String.
func ParseContentHash(s string) (ContentHash, error) {
	var h ContentHash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid content hash %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid content hash %q: want %d bytes, got %d", s, len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// DeploymentKey identifies a domain deployment by name and content.
type DeploymentKey struct {
	Name string
	Hash ContentHash
}

func (k DeploymentKey) String() string { return k.Name + "@" + k.Hash.String() }

// Deployment is a piece of content registered with the domain.
type Deployment struct {
	Key         DeploymentKey
	RuntimeName string
}

func (d *Deployment) Fingerprint() uint64 {
	return newHasher("deployment").
		str("name", d.Key.Name).
		str("hash", d.Key.Hash.String()).
		str("runtime-name", d.RuntimeName).
		sum()
}

// ServerGroupDeployment maps a domain deployment into a server group.
type ServerGroupDeployment struct {
	UniqueName  string
	RuntimeName string
	Hash        ContentHash
	Start       bool
}

// Key is the domain deployment this mapping refers to.
func (d *ServerGroupDeployment) Key() DeploymentKey {
	return DeploymentKey{Name: d.UniqueName, Hash: d.Hash}
}

// WithStart returns a copy with the start flag changed.
func (d *ServerGroupDeployment) WithStart(start bool) *ServerGroupDeployment {
	out := *d
	out.Start = start
	return &out
}

func (d *ServerGroupDeployment) Fingerprint() uint64 {
	return newHasher("group-deployment").
		str("name", d.UniqueName).
		str("runtime-name", d.RuntimeName).
		str("hash", d.Hash.String()).
		bool("start", d.Start).
		sum()
}
