// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/integrations/lib/codec"
)

// ErrCorrupt is wrapped by Read errors for files that exist but cannot
// be trusted: wrong magic, unknown version, undecodable body, or
// digest mismatch.
var ErrCorrupt = errors.New("snapshot: corrupt file")

const formatVersion = 1

var magic = [4]byte{'B', 'I', 'S', 'N'}

const (
	digestSize = 32
	headerSize = len(magic) + 1 + digestSize

	// maxBodySize bounds decompression so a crafted file cannot
	// allocate unbounded memory.
	maxBodySize = 16 << 20
)

// digestKey is the BLAKE3 key for snapshot digests: the ASCII domain
// name zero-padded to 32 bytes.
var digestKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '.', 'i', 'n', 't', 'e', 'g', 'r', 'a', 't', 'i',
	'o', 'n', 's', '.', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', 0, 0, 0, 0,
}

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use through EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBodySize))
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

func digest(body []byte) [digestSize]byte {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	var sum [digestSize]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// Encode serializes value into the snapshot file format.
func Encode(value any) ([]byte, error) {
	body, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encoding body: %w", err)
	}
	sum := digest(body)

	data := make([]byte, 0, headerSize+len(body)/2)
	data = append(data, magic[:]...)
	data = append(data, formatVersion)
	data = append(data, sum[:]...)
	return zstdEncoder.EncodeAll(body, data), nil
}

// Decode parses data in the snapshot file format into value.
func Decode(data []byte, value any) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:len(magic)])
	}
	if version := data[len(magic)]; version != formatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	var want [digestSize]byte
	copy(want[:], data[len(magic)+1:headerSize])

	body, err := zstdDecoder.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return fmt.Errorf("%w: decompressing body: %v", ErrCorrupt, err)
	}
	if digest(body) != want {
		return fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	if err := codec.Unmarshal(body, value); err != nil {
		return fmt.Errorf("%w: decoding body: %v", ErrCorrupt, err)
	}
	return nil
}

// Write atomically replaces the snapshot at path with value. The file
// is written to a temporary location in the same directory, fsynced,
// and renamed into place. The parent directory is created if missing.
//
// The file is created with mode 0600 (owner read/write only).
func Write(path string, value any) error {
	data, err := Encode(value)
	if err != nil {
		return err
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		return fmt.Errorf("snapshot: creating %s: %w", directory, err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("snapshot: creating temporary file: %w", err)
	}

	// Write, sync, close, in that order. If any step fails, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: renaming into place: %w", err)
	}

	// Make the rename durable across power loss.
	parentDirectory, err := os.Open(directory)
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Read loads the snapshot at path into value. When the file does not
// exist, the returned error wraps os.ErrNotExist (testable with
// errors.Is). Untrustworthy contents wrap ErrCorrupt.
func Read(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Decode(data, value); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// Remove deletes the snapshot at path. Idempotent: returns nil when the
// file does not exist.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: removing %s: %w", path, err)
	}
	return nil
}
