// Package credentials turns the encoded credentials sent by the home-automation
// controller into the plaintext used for upstream login.
package credentials

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Credentials holds a username and its decoded password.
type Credentials struct {
	Username string
	Password string
}

// DecodeError is returned when an encoded password can not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "invalid encoded password"
	}

	return fmt.Sprintf("invalid encoded password: %s", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errNotUTF8 = errors.New("decoded password is not valid UTF-8")

// Decode reverses the standard base64 encoding applied to a password.
func Decode(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &DecodeError{Err: err}
	}

	if !utf8.Valid(b) {
		return "", &DecodeError{Err: errNotUTF8}
	}

	return string(b), nil
}

// Encode applies the encoding Decode reverses.
func Encode(plain string) string {
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// New decodes encodedPassword and pairs it with username.
func New(username, encodedPassword string) (Credentials, error) {
	password, err := Decode(encodedPassword)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{Username: username, Password: password}, nil
}
