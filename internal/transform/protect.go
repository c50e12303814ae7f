// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transform

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// KMSClient is the subset of the KMS API Protect depends on, narrowed so
// tests can substitute a stub instead of a live AWS account.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Protect envelope-encrypts a fixed set of columns on write and decrypts
// them on read. Each write generates a fresh KMS data key; the plaintext
// data key never leaves this process, only the AEAD-sealed column bytes
// and the KMS-wrapped key accompany the row.
type Protect struct {
	client  KMSClient
	keyID   string
	columns map[string]bool
	chain   *TransformChain
}

// NewProtect builds a Protect transform for keyID, encrypting the named
// columns wherever they appear in a write Query's Values.
func NewProtect(ctx context.Context, keyID string, columns []string) (*Protect, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("loading aws config: %v", err)}
	}
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return &Protect{client: kms.NewFromConfig(cfg), keyID: keyID, columns: set}, nil
}

func (p *Protect) Name() string { return "Protect" }

func (p *Protect) PrepChain(chain *TransformChain) error {
	p.chain = chain
	return nil
}

// Clone shares the KMS client and key configuration (both read-only after
// construction) across every per-connection clone; chain is left nil and
// set again by PrepChain.
func (p *Protect) Clone() Transform {
	return &Protect{client: p.client, keyID: p.keyID, columns: p.columns}
}

func (p *Protect) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	if err := p.encryptOutgoing(ctx, wrapper.Message); err != nil {
		return nil, fmt.Errorf("protect: encrypting outgoing columns: %w", err)
	}
	result, err := CallNext(ctx, p.chain, wrapper)
	if err != nil {
		return result, err
	}
	if err := p.decryptIncoming(ctx, result); err != nil {
		return nil, fmt.Errorf("protect: decrypting result columns: %w", err)
	}
	return result, nil
}

func (p *Protect) encryptOutgoing(ctx context.Context, m message.Messages) error {
	for i := range m {
		if m[i].Query == nil {
			continue
		}
		for j, col := range m[i].Query.Values {
			if !p.columns[col.Name] || col.Value.Kind == message.KindNull {
				continue
			}
			sealed, err := p.seal(ctx, []byte(col.Value.String()))
			if err != nil {
				return err
			}
			m[i].Query.Values[j].Value = message.Value{Kind: message.KindBlob, Bytes: sealed}
		}
	}
	return nil
}

func (p *Protect) decryptIncoming(ctx context.Context, m message.Messages) error {
	for i := range m {
		if m[i].Response == nil {
			continue
		}
		for r, row := range m[i].Response.Result {
			for c, col := range row {
				if !p.columns[col.Name] || col.Value.Kind != message.KindBlob {
					continue
				}
				plain, err := p.open(ctx, col.Value.Bytes)
				if err != nil {
					return err
				}
				m[i].Response.Result[r][c].Value = message.Value{Kind: message.KindVarchar, Text: string(plain)}
			}
		}
	}
	return nil
}

// sealedEnvelope is the on-disk/on-wire shape of a protected column: the
// KMS-wrapped data key, the AES-GCM nonce, and the ciphertext.
type sealedEnvelope struct {
	wrappedKey []byte
	nonce      []byte
	ciphertext []byte
}

func (p *Protect) seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   &p.keyID,
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("generating data key: %w", err)
	}

	block, err := aes.NewCipher(out.Plaintext)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return encodeEnvelope(sealedEnvelope{wrappedKey: out.CiphertextBlob, nonce: nonce, ciphertext: ciphertext}), nil
}

func (p *Protect) open(ctx context.Context, sealed []byte) ([]byte, error) {
	env, err := decodeEnvelope(sealed)
	if err != nil {
		return nil, err
	}
	dec, err := p.client.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: env.wrappedKey})
	if err != nil {
		return nil, fmt.Errorf("unwrapping data key: %w", err)
	}
	block, err := aes.NewCipher(dec.Plaintext)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, env.nonce, env.ciphertext, nil)
}

// encodeEnvelope packs the three variable-length fields with 4-byte
// big-endian length prefixes so a single blob column can carry all of
// them.
func encodeEnvelope(e sealedEnvelope) []byte {
	buf := make([]byte, 0, 12+len(e.wrappedKey)+len(e.nonce)+len(e.ciphertext))
	buf = appendLenPrefixed(buf, e.wrappedKey)
	buf = appendLenPrefixed(buf, e.nonce)
	buf = appendLenPrefixed(buf, e.ciphertext)
	return buf
}

func appendLenPrefixed(buf []byte, data []byte) []byte {
	n := len(data)
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return append(buf, data...)
}

func decodeEnvelope(buf []byte) (sealedEnvelope, error) {
	var e sealedEnvelope
	fields := make([][]byte, 0, 3)
	for i := 0; i < 3; i++ {
		if len(buf) < 4 {
			return e, fmt.Errorf("truncated protect envelope")
		}
		n := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
		buf = buf[4:]
		if len(buf) < n {
			return e, fmt.Errorf("truncated protect envelope field")
		}
		fields = append(fields, buf[:n])
		buf = buf[n:]
	}
	e.wrappedKey, e.nonce, e.ciphertext = fields[0], fields[1], fields[2]
	return e, nil
}
