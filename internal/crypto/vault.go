package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrCrypto covers malformed ciphertext and key mismatches during
// encrypt/decrypt of partner secrets.
var ErrCrypto = errors.New("crypto error")

// Vault protects partner signing secrets at rest with AES-256-CBC.
// Ciphertext format: "<iv-hex>:<payload-hex>", fresh random 16-byte IV per
// encryption. A master key that is not exactly 32 bytes is squeezed through
// SHA-256 so operators can supply keys of arbitrary length.
type Vault struct {
	key []byte
}

func NewVault(masterKey string) *Vault {
	key := []byte(masterKey)
	if len(key) != 32 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}
	return &Vault{key: key}
}

// Encrypt returns "<iv-hex>:<ciphertext-hex>" for the given plaintext secret.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt is the inverse of Encrypt. It fails with ErrCrypto when the
// ciphertext is malformed or was produced under a different key.
func (v *Vault) Decrypt(encoded string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return "", fmt.Errorf("%w: missing iv separator", ErrCrypto)
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv", ErrCrypto)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad payload", ErrCrypto)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	unpadded, err := pkcs7Unpad(pt, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, fmt.Errorf("%w: bad padded length", ErrCrypto)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCrypto)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCrypto)
		}
	}
	return b[:len(b)-n], nil
}
