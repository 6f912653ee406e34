// integrity.go: SHA-256 checksum verification of bundle files before loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package payadapters

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// IntegrityConfig pins bundle files to known checksums. Keys are bundle
// file names (not paths), values are hex-encoded SHA-256 digests.
//
// When enabled, a bundle without an entry is rejected just like a bundle
// whose digest differs.
type IntegrityConfig struct {
	Enabled   bool              `json:"enabled" yaml:"enabled"`
	Checksums map[string]string `json:"checksums" yaml:"checksums"`
}

// HashFile returns the hex SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path)) // #nosec G304 - path comes from the configured plugin dir
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify checks the bundle at path against the configured checksum. It is a
// no-op when integrity checking is disabled.
func (c IntegrityConfig) Verify(path string) error {
	if !c.Enabled {
		return nil
	}
	name := filepath.Base(path)
	expected, ok := c.Checksums[name]
	if !ok {
		return NewIntegrityMismatchError(path, "", "unlisted")
	}
	actual, err := HashFile(path)
	if err != nil {
		return NewBundleReadError(path, err)
	}
	if !strings.EqualFold(strings.TrimSpace(expected), actual) {
		return NewIntegrityMismatchError(path, expected, actual)
	}
	return nil
}
