// Package secrets seals site credentials so they can sit in a config file.
package secrets

import (
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/scrypt"
)

const (
	tokenName = "recsched-credentials"
	salt      = "recsched/credentials/v1"
)

var ErrEmptyPassphrase = errors.New("seal passphrase is empty")

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// Sealer encrypts and authenticates credentials with keys derived from a
// passphrase.
type Sealer struct {
	sc *securecookie.SecureCookie
}

func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(salt), 1<<15, 8, 1, 64)
	if err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}
	sc := securecookie.New(key[:32], key[32:])
	sc.MaxAge(0)
	return &Sealer{sc: sc}, nil
}

func (s *Sealer) Seal(c Credentials) (string, error) {
	token, err := s.sc.Encode(tokenName, c)
	if err != nil {
		return "", fmt.Errorf("seal credentials: %w", err)
	}
	return token, nil
}

func (s *Sealer) Open(token string) (Credentials, error) {
	var c Credentials
	if err := s.sc.Decode(tokenName, token, &c); err != nil {
		return Credentials{}, fmt.Errorf("open sealed credentials: %w", err)
	}
	return c, nil
}
