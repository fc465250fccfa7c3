// Package token encodes and decodes the auth cookie.
//
// The cookie value is the encryption of "{userID}:{expiryEpochSeconds}". The
// expiry inside the ciphertext is the only one the server trusts; Max-Age and
// Expires only tell the browser when to discard the cookie.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/stateless/internal/crypto"
	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/session"
)

// IssuedCookie is a freshly minted auth cookie.
type IssuedCookie struct {
	Value      string
	Directives []string
}

// Header renders the Set-Cookie header value, directives joined with "; ".
func (c IssuedCookie) Header() string {
	parts := make([]string, 0, len(c.Directives)+1)
	parts = append(parts, session.CookieName+"="+c.Value)
	parts = append(parts, c.Directives...)
	return strings.Join(parts, "; ")
}

// Codec turns user ids into auth cookies and back.
type Codec struct {
	crypto crypto.Service
	secure bool
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithSecure adds the Secure attribute to every cookie.
func WithSecure(secure bool) Option {
	return func(c *Codec) {
		c.secure = secure
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a Codec backed by the given encryption service.
func NewCodec(svc crypto.Service, opts ...Option) *Codec {
	c := &Codec{
		crypto: svc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Encode mints a cookie for userID.
//
// A nil maxAge produces a session cookie whose payload still expires after
// domain.DefaultTokenLifetime. A negative maxAge is treated like nil. Max-Age
// is rounded up to whole seconds, so a positive sub-second maxAge yields
// Max-Age=1 rather than an already expired cookie. The payload expiry is
// stored in whole seconds, truncated.
func (c *Codec) Encode(userID int64, maxAge *time.Duration) (IssuedCookie, error) {
	const op = "token.Encode"

	if userID < 0 {
		return IssuedCookie{}, domain.Invalid(op, "user id must not be negative")
	}

	now := c.now()
	if maxAge != nil && *maxAge < 0 {
		maxAge = nil
	}

	lifetime := domain.DefaultTokenLifetime
	if maxAge != nil {
		lifetime = *maxAge
	}

	plaintext := formatPayload(userID, now.Add(lifetime))
	value, err := c.crypto.Encrypt(plaintext)
	if err != nil {
		return IssuedCookie{}, domain.Internal(err, op, "Failed to encrypt token")
	}

	return IssuedCookie{
		Value:      value,
		Directives: c.directives(now, maxAge),
	}, nil
}

// Expire returns a cookie that makes the client delete the auth cookie.
func (c *Codec) Expire() IssuedCookie {
	zero := time.Duration(0)
	return IssuedCookie{
		Value:      "",
		Directives: c.directives(c.now(), &zero),
	}
}

// Decode decrypts and parses a cookie value. Every failure is reported as
// domain.ErrTokenInvalid; the returned token is not checked for expiry.
func (c *Codec) Decode(value string) (domain.AuthToken, error) {
	const op = "token.Decode"

	if value == "" {
		return domain.AuthToken{}, domain.TokenInvalid(op, errors.New("empty cookie value"))
	}

	plaintext, err := c.crypto.Decrypt(value)
	if err != nil {
		return domain.AuthToken{}, domain.TokenInvalid(op, err)
	}

	tok, err := parsePayload(plaintext)
	if err != nil {
		return domain.AuthToken{}, domain.TokenInvalid(op, err)
	}
	return tok, nil
}

func (c *Codec) directives(now time.Time, maxAge *time.Duration) []string {
	out := make([]string, 0, 6)

	if maxAge != nil {
		seconds := int64((*maxAge + time.Second - 1) / time.Second)
		out = append(out, "Max-Age="+strconv.FormatInt(seconds, 10))
		if seconds == 0 {
			out = append(out, "Expires="+FormatCookieDate(session.ExpiredInstant))
		} else {
			out = append(out, "Expires="+FormatCookieDate(now.Add(time.Duration(seconds)*time.Second)))
		}
	}

	out = append(out,
		"SameSite="+session.CookieSameSite,
		"Path="+session.CookiePath,
		"HttpOnly",
	)
	if c.secure {
		out = append(out, "Secure")
	}
	return out
}

// FormatCookieDate formats t as "Mon, 02 Jan 2006 15:04:05 GMT" in UTC.
func FormatCookieDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func formatPayload(userID int64, expiresAt time.Time) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(expiresAt.Unix(), 10)
}

func parsePayload(plaintext string) (domain.AuthToken, error) {
	idPart, expiryPart, ok := strings.Cut(plaintext, ":")
	if !ok {
		return domain.AuthToken{}, fmt.Errorf("payload %q: missing separator", plaintext)
	}

	userID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return domain.AuthToken{}, fmt.Errorf("payload user id: %w", err)
	}
	if userID < 0 {
		return domain.AuthToken{}, fmt.Errorf("payload user id %d is negative", userID)
	}

	epoch, err := strconv.ParseInt(expiryPart, 10, 64)
	if err != nil {
		return domain.AuthToken{}, fmt.Errorf("payload expiry: %w", err)
	}

	return domain.AuthToken{
		UserID:    userID,
		ExpiresAt: time.Unix(epoch, 0),
	}, nil
}
