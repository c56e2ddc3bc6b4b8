package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kivu-credit/kivu_credit/internal/config"
)

const (
	// RoleAccount marks a token acting on its own position.
	RoleAccount = "account"
	// RoleOperator marks a token allowed to call the administrative surface.
	RoleOperator = "operator"
)

// ErrBadOperatorKey indicates the presented operator key does not match the
// configured hash.
var ErrBadOperatorKey = errors.New("operator key rejected")

// Service mints bearer tokens for account principals. Minting is gated by the
// operator key, which is held by the fronting gateway; the ledger itself keeps
// no user registry.
type Service struct {
	cfg config.Config
}

// NewService builds an auth service instance.
func NewService(cfg config.Config) *Service {
	return &Service{cfg: cfg}
}

// Token carries a freshly minted bearer token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Mint verifies the operator key and signs a token for the given address. The
// operator role is only granted to the configured owner address.
func (s *Service) Mint(address, operatorKey string) (Token, error) {
	if s.cfg.OperatorKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OperatorKeyHash), []byte(operatorKey)); err != nil {
			return Token{}, ErrBadOperatorKey
		}
	} else if !s.cfg.IsDev() {
		return Token{}, ErrBadOperatorKey
	}

	role := RoleAccount
	if address != "" && address == s.cfg.OwnerAddress {
		role = RoleOperator
	}

	now := time.Now()
	exp := now.Add(s.cfg.TokenTTL)
	signed, err := SignHS256(Claims{
		"sub":  address,
		"role": role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}, []byte(s.cfg.JWTSecret))
	if err != nil {
		return Token{}, err
	}

	return Token{AccessToken: signed, ExpiresIn: int64(exp.Sub(now).Seconds())}, nil
}
