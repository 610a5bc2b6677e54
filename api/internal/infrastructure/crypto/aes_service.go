package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/irgordon/karidc/api/internal/core/domain"
)

var ErrIntegrity = errors.New("crypto: integrity violation - potential tampering detected")

var _ domain.CryptoService = (*AESCryptoService)(nil)

// AESCryptoService seals snapshots with AES-256-GCM. Retired keys can still
// open what they sealed; everything new is sealed with the primary key.
type AESCryptoService struct {
	// 🛡️ Pre-calculated AEADs, primary first
	aeads []cipher.AEAD
}

func NewAESCryptoService(hexKey string, retiredHexKeys ...string) (*AESCryptoService, error) {
	s := &AESCryptoService{}
	for i, k := range append([]string{hexKey}, retiredHexKeys...) {
		aead, err := newAEAD(k)
		if err != nil {
			if i > 0 {
				return nil, fmt.Errorf("retired key %d: %w", i, err)
			}
			return nil, err
		}
		s.aeads = append(s.aeads, aead)
	}
	return s, nil
}

func newAEAD(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid key encoding: %w", err)
	}
	// 🛡️ Zeroize the temporary key slice once the cipher holds its own copy
	defer clear(key)

	if len(key) != 32 {
		return nil, errors.New("crypto: key must be 32 bytes for AES-256")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: block cipher failure: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: GCM failure: %w", err)
	}
	return aead, nil
}

func (s *AESCryptoService) Encrypt(_ context.Context, plaintext []byte, associatedData []byte) (string, error) {
	aead := s.aeads[0]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce generation failure: %w", err)
	}
	return base64.URLEncoding.EncodeToString(aead.Seal(nonce, nonce, plaintext, associatedData)), nil
}

func (s *AESCryptoService) Decrypt(_ context.Context, ciphertextBase64 string, associatedData []byte) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return nil, fmt.Errorf("crypto: base64 decode failure: %w", err)
	}
	for _, aead := range s.aeads {
		ns := aead.NonceSize()
		if len(data) < ns+aead.Overhead() {
			return nil, errors.New("crypto: ciphertext too short")
		}
		// 🛡️ A different snapshot identity in associatedData fails here too
		if plain, err := aead.Open(nil, data[:ns], data[ns:], associatedData); err == nil {
			return plain, nil
		}
	}
	return nil, ErrIntegrity
}
