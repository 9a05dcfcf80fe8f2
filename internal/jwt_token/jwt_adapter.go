package jwttoken

import (
	authmw "accolade/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims narrows validated claims to what the auth middleware needs.
func ToMiddlewareClaims(claims *Claims) (*authmw.JWTClaims, error) {
	caller, err := claims.Caller()
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		Caller: caller,
		JTI:    claims.ID,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
