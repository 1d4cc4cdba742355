// Copyright 2026 The Torvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package onion handles version 3 onion addresses, which are what the
// daemon writes to a hidden service's hostname file.
//
// An address is the base32 encoding of the service's ed25519 public key,
// a two byte checksum, and a version byte, followed by ".onion".
package onion

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base32"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// Version is the only address version still in use.
	Version = 3

	// Suffix is the top level pseudo-domain.
	Suffix = ".onion"

	// EncodedLen is the length of the address without the suffix.
	EncodedLen = 56

	checksumPrefix = ".onion checksum"
	rawLen         = ed25519.PublicKeySize + 2 + 1
)

var (
	ErrBadLength   = errors.New("Onion address has bad length")
	ErrBadEncoding = errors.New("Onion address is not base32")
	ErrBadVersion  = errors.New("Unsupported onion address version")
	ErrBadChecksum = errors.New("Onion address checksum mismatch")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Address is a parsed onion address.
type Address struct {
	PublicKey ed25519.PublicKey
	Version   byte
}

func checksum(pub []byte, version byte) []byte {
	h := sha3.New256()
	h.Write([]byte(checksumPrefix))
	h.Write(pub)
	h.Write([]byte{version})
	return h.Sum(nil)[:2]
}

// FromPublicKey returns the address of the service with the given key.
func FromPublicKey(pub ed25519.PublicKey) *Address {
	return &Address{
		PublicKey: append(ed25519.PublicKey{}, pub...),
		Version:   Version,
	}
}

// Parse validates a hostname such as the daemon writes.  The suffix is
// optional and case is ignored.
func Parse(hostname string) (*Address, error) {
	s := strings.ToLower(strings.TrimSpace(hostname))
	s = strings.TrimSuffix(s, Suffix)
	// Subdomains are allowed in front of the address proper.
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) != EncodedLen {
		return nil, ErrBadLength
	}
	raw, e := encoding.DecodeString(strings.ToUpper(s))
	if e != nil || len(raw) != rawLen {
		return nil, ErrBadEncoding
	}
	pub := raw[:ed25519.PublicKeySize]
	sum := raw[ed25519.PublicKeySize : ed25519.PublicKeySize+2]
	ver := raw[rawLen-1]
	if ver != Version {
		return nil, ErrBadVersion
	}
	if !bytes.Equal(sum, checksum(pub, ver)) {
		return nil, ErrBadChecksum
	}
	return &Address{PublicKey: ed25519.PublicKey(pub), Version: ver}, nil
}

// Valid reports whether hostname is a well formed v3 onion address.
func Valid(hostname string) bool {
	_, e := Parse(hostname)
	return e == nil
}

// String returns the hostname form, including the suffix.
func (a *Address) String() string {
	raw := make([]byte, 0, rawLen)
	raw = append(raw, a.PublicKey...)
	raw = append(raw, checksum(a.PublicKey, a.Version)...)
	raw = append(raw, a.Version)
	return strings.ToLower(encoding.EncodeToString(raw)) + Suffix
}
