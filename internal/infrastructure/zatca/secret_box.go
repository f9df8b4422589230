package zatca

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	sealedPrefix = "v1:"
	keySalt      = "zatca-api/tenant-credentials"
)

// ErrSecretCorrupt el valor sellado no se pudo abrir (clave incorrecta o dato alterado).
var ErrSecretCorrupt = errors.New("zatca: credencial cifrada inválida")

// SecretBox cifra credenciales del tenant en reposo con XChaCha20-Poly1305.
// La clave se deriva de la passphrase con scrypt una sola vez.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox deriva la clave a partir de passphrase.
func NewSecretBox(passphrase string) (*SecretBox, error) {
	if passphrase == "" {
		return nil, errors.New("zatca: passphrase vacía")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(keySalt), 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("zatca: derivar clave: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("zatca: inicializar AEAD: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal cifra plaintext. La cadena vacía se conserva vacía.
func (b *SecretBox) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("zatca: generar nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open descifra un valor producido por Seal. Valores sin prefijo se devuelven tal cual
// (filas escritas antes de activar el cifrado).
func (b *SecretBox) Open(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil || len(raw) < b.aead.NonceSize() {
		return "", ErrSecretCorrupt
	}
	nonce, ct := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrSecretCorrupt
	}
	return string(pt), nil
}

// PlaintextSealer no cifra. Solo para desarrollo local sin ZATCA_SECRET_KEY.
type PlaintextSealer struct{}

func (PlaintextSealer) Seal(s string) (string, error) { return s, nil }
func (PlaintextSealer) Open(s string) (string, error) { return s, nil }
