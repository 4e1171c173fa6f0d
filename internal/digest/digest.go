// Package digest computes the content identifiers used for blobs, snapshots
// and commits.
package digest

import (
	"fmt"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// Digest is a CIDv1 (raw codec, SHA2-256) over some content.
// The zero value is Undef.
type Digest struct {
	c gocid.Cid
}

// Undef is the absent digest, e.g. the parent of a root commit.
var Undef = Digest{}

// Sum computes the digest of data.
func Sum(data []byte) (Digest, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return Undef, fmt.Errorf("multihash: %w", err)
	}
	return Digest{c: gocid.NewCidV1(gocid.Raw, mh)}, nil
}

// Parse decodes the base32 text form produced by String.
func Parse(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Undef, fmt.Errorf("parse digest: empty string")
	}
	_, raw, err := multibase.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("parse digest %q: %w", s, err)
	}
	c, err := gocid.Cast(raw)
	if err != nil {
		return Undef, fmt.Errorf("parse digest %q: %w", s, err)
	}
	return Digest{c: c}, nil
}

// Defined reports whether d holds a digest.
func (d Digest) Defined() bool {
	return d.c.Defined()
}

// String returns the base32lower multibase encoding, usable as a filename.
// Undef encodes as "".
func (d Digest) String() string {
	if !d.Defined() {
		return ""
	}
	encoded, _ := multibase.Encode(multibase.Base32, d.c.Bytes())
	return encoded
}

// Short returns an abbreviated form for display.
func (d Digest) Short() string {
	s := d.String()
	if len(s) <= 12 {
		return s
	}
	return s[len(s)-12:]
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Undef.
func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Undef
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
