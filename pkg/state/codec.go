package state

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Codec compresses and decompresses serialized entry payloads. The manager
// applies it when a value's serialized size exceeds the namespace
// compression threshold.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Cipher encrypts and decrypts serialized entry payloads for namespaces
// with encryption enabled. Production wires a real implementation; tests
// inject in-memory stand-ins.
type Cipher interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// GzipCodec is the default codec.
type GzipCodec struct{}

func (GzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// NoopCipher passes data through unchanged. It is the default so the core
// runs without key material; deployments swap in a real cipher.
type NoopCipher struct{}

func (NoopCipher) Encrypt(data []byte) ([]byte, error) { return data, nil }
func (NoopCipher) Decrypt(data []byte) ([]byte, error) { return data, nil }
