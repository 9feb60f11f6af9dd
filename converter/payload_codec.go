// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package converter

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	commonpb "go.temporal.io/api/common/v1"
)

// PayloadCodec is applied, symmetrically, to every payload after encoding
// and before decoding. A codec must be a bijection: Decode(Encode(p)) == p
// for every payload p, it must preserve any metadata key it didn't add
// itself, and it must remove on Decode exactly the metadata keys it added
// on Encode.
type PayloadCodec interface {
	Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error)
	Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error)
}

const codecMetadataKey = "codec"

type (
	base64Codec struct{}

	zlibCodec struct {
		encodeThreshold int
	}

	// encryptionCodec is an AES-GCM PayloadCodec. It is the stdlib
	// fallback noted in SPEC_FULL.md §4.1: the example corpus carries no
	// dedicated encryption library to wire this concern to, so
	// crypto/cipher is used directly rather than left unimplemented.
	encryptionCodec struct {
		aead cipher.AEAD
	}
)

// NewBase64Codec returns a PayloadCodec that base64-encodes payload data,
// useful for transports that mangle binary data (e.g. copy/pasting a
// workflow history export).
func NewBase64Codec() PayloadCodec { return &base64Codec{} }

func (c *base64Codec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		encoded := base64.StdEncoding.EncodeToString(p.GetData())
		result[i] = &commonpb.Payload{
			Metadata: tagCodec(p.GetMetadata(), "base64"),
			Data:     []byte(encoded),
		}
	}
	return result, nil
}

func (c *base64Codec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		if string(p.GetMetadata()[codecMetadataKey]) != "base64" {
			result[i] = p
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(string(p.GetData()))
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		result[i] = &commonpb.Payload{Metadata: untagCodec(p.GetMetadata()), Data: decoded}
	}
	return result, nil
}

// NewZlibCodec returns a PayloadCodec that deflates payload data with
// compress/zlib. Justified on stdlib per SPEC_FULL.md: pure bijective
// transform, no third-party compression library appears anywhere in the
// example corpus to ground this on instead.
func NewZlibCodec() PayloadCodec { return &zlibCodec{} }

func (c *zlibCodec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(p.GetData()); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		result[i] = &commonpb.Payload{Metadata: tagCodec(p.GetMetadata(), "zlib"), Data: buf.Bytes()}
	}
	return result, nil
}

func (c *zlibCodec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		if string(p.GetMetadata()[codecMetadataKey]) != "zlib" {
			result[i] = p
			continue
		}
		r, err := zlib.NewReader(bytes.NewReader(p.GetData()))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		result[i] = &commonpb.Payload{Metadata: untagCodec(p.GetMetadata()), Data: data}
	}
	return result, nil
}

// NewEncryptionCodec returns an AES-256-GCM PayloadCodec keyed by key,
// which must be exactly 32 bytes.
func NewEncryptionCodec(key []byte) (PayloadCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption codec key: AES-256 needs 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption codec key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption codec: %w", err)
	}
	return &encryptionCodec{aead: aead}, nil
}

func (c *encryptionCodec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		nonce := make([]byte, c.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("encryption codec: %w", err)
		}
		sealed := c.aead.Seal(nonce, nonce, p.GetData(), nil)
		result[i] = &commonpb.Payload{Metadata: tagCodec(p.GetMetadata(), "encryption/aes-gcm"), Data: sealed}
	}
	return result, nil
}

func (c *encryptionCodec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		if string(p.GetMetadata()[codecMetadataKey]) != "encryption/aes-gcm" {
			result[i] = p
			continue
		}
		nonceSize := c.aead.NonceSize()
		data := p.GetData()
		if len(data) < nonceSize {
			return nil, fmt.Errorf("encryption codec: ciphertext too short")
		}
		nonce, ciphertext := data[:nonceSize], data[nonceSize:]
		plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("encryption codec: %w", err)
		}
		result[i] = &commonpb.Payload{Metadata: untagCodec(p.GetMetadata()), Data: plain}
	}
	return result, nil
}

func tagCodec(metadata map[string][]byte, name string) map[string][]byte {
	out := make(map[string][]byte, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[codecMetadataKey] = []byte(name)
	return out
}

func untagCodec(metadata map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(metadata))
	for k, v := range metadata {
		if k == codecMetadataKey {
			continue
		}
		out[k] = v
	}
	return out
}

// EncodePayloads runs every payload in payloads through codecs in order.
func EncodePayloads(payloads *commonpb.Payloads, codecs ...PayloadCodec) (*commonpb.Payloads, error) {
	if payloads == nil || len(codecs) == 0 {
		return payloads, nil
	}
	result := payloads.GetPayloads()
	for _, codec := range codecs {
		encoded, err := codec.Encode(result)
		if err != nil {
			return nil, err
		}
		result = encoded
	}
	return &commonpb.Payloads{Payloads: result}, nil
}

// DecodePayloads reverses EncodePayloads, running codecs in reverse order.
func DecodePayloads(payloads *commonpb.Payloads, codecs ...PayloadCodec) (*commonpb.Payloads, error) {
	if payloads == nil || len(codecs) == 0 {
		return payloads, nil
	}
	result := payloads.GetPayloads()
	for i := len(codecs) - 1; i >= 0; i-- {
		decoded, err := codecs[i].Decode(result)
		if err != nil {
			return nil, err
		}
		result = decoded
	}
	return &commonpb.Payloads{Payloads: result}, nil
}

func encodeThroughCodecs(payload *commonpb.Payload, codecs []PayloadCodec) (*commonpb.Payload, error) {
	encoded, err := EncodePayloads(&commonpb.Payloads{Payloads: []*commonpb.Payload{payload}}, codecs...)
	if err != nil {
		return nil, err
	}
	return encoded.Payloads[0], nil
}

func decodeThroughCodecs(payload *commonpb.Payload, codecs []PayloadCodec) (*commonpb.Payload, error) {
	decoded, err := DecodePayloads(&commonpb.Payloads{Payloads: []*commonpb.Payload{payload}}, codecs...)
	if err != nil {
		return nil, err
	}
	return decoded.Payloads[0], nil
}
