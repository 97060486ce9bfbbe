// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxClientIDLen = 64

var (
	ErrClientIDEmpty   = errors.New("client id empty")
	ErrClientIDTooLong = errors.New("client id too long")
)

// ClientID identifies one browser tab or peer process across signaling reconnects.
type ClientID string

func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func ParseClientID(s string) (ClientID, error) {
	if len(s) == 0 {
		return "", ErrClientIDEmpty
	}
	if len(s) > MaxClientIDLen {
		return "", ErrClientIDTooLong
	}
	return ClientID(s), nil
}
