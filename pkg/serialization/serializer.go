// Package serialization encodes snapshots through a codec, optional
// compression, and optional AES-GCM encryption.
package serialization

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names.
const (
	CodecJSON    = "json"
	CodecMsgPack = "msgpack"
)

// Compression identifies a compression algorithm.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ErrCiphertext indicates encrypted data shorter than the GCM nonce.
var ErrCiphertext = errors.New("invalid ciphertext size")

// Codec encodes and decodes values to bytes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Serializer runs values through codec, compression, and encryption.
type Serializer struct {
	codec       Codec
	compression Compression
	key         []byte
}

// New creates a Serializer from a finalized Config.
func New(cfg *Config) (*Serializer, error) {
	codec, err := codecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return &Serializer{
		codec:       codec,
		compression: Compression(cfg.Compression),
		key:         cfg.Key(),
	}, nil
}

// Default returns a msgpack + zstd serializer without encryption.
func Default() *Serializer {
	return &Serializer{
		codec:       MsgPackCodec{},
		compression: CompressionZstd,
	}
}

// Codec returns the serializer's codec name.
func (s *Serializer) Codec() string {
	return s.codec.Name()
}

// Serialize encodes, compresses, and encrypts v.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	data, err := s.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.codec.Name(), err)
	}

	data, err = s.compress(data)
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", s.compression, err)
	}

	if len(s.key) > 0 {
		data, err = s.encrypt(data)
		if err != nil {
			return nil, fmt.Errorf("encrypt: %w", err)
		}
	}

	return data, nil
}

// Deserialize reverses Serialize into v.
func (s *Serializer) Deserialize(data []byte, v any) error {
	var err error

	if len(s.key) > 0 {
		data, err = s.decrypt(data)
		if err != nil {
			return fmt.Errorf("decrypt: %w", err)
		}
	}

	data, err = s.decompress(data)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", s.compression, err)
	}

	if err := s.codec.Decode(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.codec.Name(), err)
	}

	return nil
}

func (s *Serializer) compress(data []byte) ([]byte, error) {
	switch s.compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func (s *Serializer) decompress(data []byte) ([]byte, error) {
	switch s.compression {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

func (s *Serializer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Serializer) encrypt(data []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (s *Serializer) decrypt(data []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	size := gcm.NonceSize()
	if len(data) < size {
		return nil, ErrCiphertext
	}

	nonce, ciphertext := data[:size], data[size:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// JSONCodec encodes with encoding/json.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error)    { return json.Marshal(v) }
func (JSONCodec) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                    { return CodecJSON }

// MsgPackCodec encodes with MessagePack, reading json struct tags so a type
// carries one set of field names across both codecs.
type MsgPackCodec struct{}

func (MsgPackCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgPackCodec) Decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (MsgPackCodec) Name() string { return CodecMsgPack }

func codecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgPack:
		return MsgPackCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", name)
	}
}
