package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess       = "access"
	tokenTypeRegistration = "registration"
)

// Tokens signs and verifies the HS256 tokens used for sessions and
// registration links. A registration token is never accepted as an access
// token and vice versa.
type Tokens struct {
	secret        []byte
	accessTTL     time.Duration
	invitationTTL time.Duration
	now           func() time.Time
}

func NewTokens(secret string, accessTTL, invitationTTL time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), accessTTL: accessTTL, invitationTTL: invitationTTL, now: time.Now}
}

func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

func (t *Tokens) IssueAccess(userID uuid.UUID) (string, time.Time, error) {
	exp := t.now().Add(t.accessTTL)
	token, err := t.sign(jwt.MapClaims{
		"sub": userID.String(),
		"typ": tokenTypeAccess,
		"iat": t.now().Unix(),
		"exp": exp.Unix(),
	})
	return token, exp, err
}

// ParseAccess returns the user id of a valid access token.
func (t *Tokens) ParseAccess(raw string) (uuid.UUID, error) {
	claims, err := t.parse(raw, tokenTypeAccess)
	if err != nil {
		return uuid.Nil, err
	}
	return subject(claims)
}

func (t *Tokens) IssueRegistration(userID uuid.UUID, email string) (string, error) {
	return t.sign(jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"typ":   tokenTypeRegistration,
		"exp":   t.now().Add(t.invitationTTL).Unix(),
	})
}

// ParseRegistration returns the invited user's id and the email the link was issued for.
func (t *Tokens) ParseRegistration(raw string) (uuid.UUID, string, error) {
	claims, err := t.parse(raw, tokenTypeRegistration)
	if err != nil {
		return uuid.Nil, "", err
	}
	id, err := subject(claims)
	if err != nil {
		return uuid.Nil, "", err
	}
	email, _ := claims["email"].(string)
	return id, email, nil
}

func (t *Tokens) sign(claims jwt.MapClaims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

func (t *Tokens) parse(raw, typ string) (jwt.MapClaims, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing token: %w", ErrUnauthenticated)
	}
	token, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("invalid token: %w", ErrUnauthenticated)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != typ {
		return nil, fmt.Errorf("wrong token type: %w", ErrUnauthenticated)
	}
	return claims, nil
}

func subject(claims jwt.MapClaims) (uuid.UUID, error) {
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token subject: %w", ErrUnauthenticated)
	}
	return id, nil
}
