// Package envelope implements the encrypted wire representation of payloads:
// "<ivBase64>:<ciphertextBase64>", AES in CBC mode with PKCS7 padding.
// An envelope carries no integrity tag; authenticity is established by the
// request signature layer.
package envelope

import (
	"bytes"
	"chat-relay/errors"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	IVSize    = aes.BlockSize
	separator = ":"
)

// Codec holds a parsed key. It is safe for concurrent use.
type Codec struct {
	block cipher.Block
}

// NewCodec parses a hex secret decoding to 16, 24 or 32 bytes (AES-128/192/256).
func NewCodec(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}
	return NewCodecFromBytes(key)
}

func NewCodecFromBytes(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidKey, err)
	}
	return &Codec{block: block}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(iv) + separator +
		base64.StdEncoding.EncodeToString(out), nil
}

func (c *Codec) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens an envelope. Any failure returns a nil slice and an error
// wrapping errors.ErrDecryption.
func (c *Codec) Decrypt(envelope string) ([]byte, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected iv:ciphertext", errors.ErrDecryption)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != IVSize {
		return nil, fmt.Errorf("%w: malformed iv", errors.ErrDecryption)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", errors.ErrDecryption)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", errors.ErrDecryption)
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ciphertext)
	out, err := unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Codec) DecryptString(envelope string) (string, error) {
	b, err := c.Decrypt(envelope)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Encrypt and Decrypt are one-shot helpers taking the hex key directly.
func Encrypt(plaintext []byte, hexKey string) (string, error) {
	c, err := NewCodec(hexKey)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plaintext)
}

func Decrypt(envelope, hexKey string) ([]byte, error) {
	c, err := NewCodec(hexKey)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(envelope)
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad checks every padding byte, not only the last one.
func unpad(b []byte, blockSize int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", errors.ErrDecryption)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("%w: invalid padding", errors.ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
