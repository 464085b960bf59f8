// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package client

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// tokenExpiry reads the exp claim from a JWT without verifying the
// signature. The client only uses it to schedule refreshes; the server stays
// the authority on validity.
func tokenExpiry(accessToken string) (time.Time, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return time.Time{}, errors.New("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, errors.New("malformed token payload")
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, errors.New("malformed token claims")
	}
	if claims.Exp == 0 {
		return time.Time{}, errors.New("token has no expiry")
	}
	return time.Unix(claims.Exp, 0), nil
}
