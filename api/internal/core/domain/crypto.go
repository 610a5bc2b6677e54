package domain

import "context"

// CryptoService seals stored snapshots with authenticated encryption.
// The associated data binds a ciphertext to the model it belongs to, so a
// host snapshot can never be replayed as the domain snapshot.
type CryptoService interface {
	Encrypt(ctx context.Context, plaintext []byte, associatedData []byte) (string, error)

	// Decrypt fails when associatedData differs from the value used to encrypt.
	Decrypt(ctx context.Context, ciphertextBase64 string, associatedData []byte) ([]byte, error)
}
