package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
)

// RedactedCardNumber is shown when a stored number cannot be decrypted
const RedactedCardNumber = "**** **** **** ****"

const (
	encryptionKeyInfo = "card-number-encryption"
	nonceKeyInfo      = "card-number-nonce"
)

// GenerateCardNumber generates a card number with the specified prefix and length.
// Uniqueness is not guaranteed; the store enforces it.
func GenerateCardNumber(prefix string, length int) (string, error) {
	if length < len(prefix) || length > 19 {
		return "", fmt.Errorf("invalid card number length: %d", length)
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("card number prefix must be numeric: %q", prefix)
		}
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	ten := big.NewInt(10)
	for builder.Len() < length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate random digits: %w", err)
		}
		builder.WriteByte(byte('0' + n.Int64()))
	}

	return builder.String(), nil
}

// GenerateExpiryDate returns the calendar date the given number of years after now
func GenerateExpiryDate(now time.Time, years int) time.Time {
	return models.DateOf(now).AddDate(years, 0, 0)
}

// CardCipher encrypts card numbers for storage and masks them for display.
// Encryption is deterministic under one key so that encrypted numbers can be
// compared for uniqueness: the GCM nonce is an HMAC of the plaintext.
type CardCipher struct {
	aead     cipher.AEAD
	nonceKey []byte
	log      *logrus.Logger
}

// NewCardCipher builds a cipher from a configured secret. The secret is expanded
// to a 256-bit key with SHA-256. An empty secret yields a random key: numbers
// stored under it become unreadable once the process restarts.
func NewCardCipher(secret string, log *logrus.Logger) (*CardCipher, error) {
	master := make([]byte, sha256.Size)
	if secret != "" {
		sum := sha256.Sum256([]byte(secret))
		copy(master, sum[:])
	} else {
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("%w: failed to generate key: %v", models.ErrCryptoFailure, err)
		}
		log.Warn("ENCRYPTION_KEY is not set, using a random key: stored card numbers will not decrypt after restart")
	}
	return newCardCipher(master, log)
}

func newCardCipher(master []byte, log *logrus.Logger) (*CardCipher, error) {
	encKey, err := deriveKey(master, encryptionKeyInfo)
	if err != nil {
		return nil, err
	}
	nonceKey, err := deriveKey(master, nonceKeyInfo)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", models.ErrCryptoFailure, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", models.ErrCryptoFailure, err)
	}

	return &CardCipher{aead: aead, nonceKey: nonceKey, log: log}, nil
}

func deriveKey(master []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("%w: failed to derive key: %v", models.ErrCryptoFailure, err)
	}
	return key, nil
}

func (c *CardCipher) nonce(plaintext []byte) []byte {
	h := hmac.New(sha256.New, c.nonceKey)
	h.Write(plaintext)
	return h.Sum(nil)[:c.aead.NonceSize()]
}

// Encrypt returns hex(nonce || sealed plaintext)
func (c *CardCipher) Encrypt(plaintext string) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: input data is empty", models.ErrCryptoFailure)
	}

	data := []byte(plaintext)
	nonce := c.nonce(data)
	sealed := c.aead.Seal(nil, nonce, data, nil)

	final := make([]byte, 0, len(nonce)+len(sealed))
	final = append(final, nonce...)
	final = append(final, sealed...)
	return hex.EncodeToString(final), nil
}

// Decrypt reverses Encrypt. Ciphertext produced under another key fails authentication.
func (c *CardCipher) Decrypt(encryptedData string) (string, error) {
	if len(encryptedData) == 0 {
		return "", fmt.Errorf("%w: encrypted data is empty", models.ErrCryptoFailure)
	}

	data, err := hex.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode hex: %v", models.ErrCryptoFailure, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: encrypted data too short: %d bytes", models.ErrCryptoFailure, len(data))
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open ciphertext: %v", models.ErrCryptoFailure, err)
	}
	if !hmac.Equal(nonce, c.nonce(plaintext)) {
		return "", fmt.Errorf("%w: nonce does not match plaintext", models.ErrCryptoFailure)
	}

	return string(plaintext), nil
}

// MaskEncrypted decrypts a stored number and masks it. It never fails: an
// undecryptable number is logged and replaced by RedactedCardNumber.
func (c *CardCipher) MaskEncrypted(ciphertext string, cardID int64) string {
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		c.log.WithError(err).WithField("card_id", cardID).Warn("Failed to decrypt card number for display")
		return RedactedCardNumber
	}
	return MaskCardNumber(plaintext)
}

// MaskCardNumber keeps the last 4 digits and replaces every preceding group of
// four with asterisks, e.g. "**** **** **** 1234".
func MaskCardNumber(number string) string {
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) <= 4 {
		return RedactedCardNumber
	}
	groups := (len(digits) - 4 + 3) / 4
	return strings.Repeat("**** ", groups) + digits[len(digits)-4:]
}
