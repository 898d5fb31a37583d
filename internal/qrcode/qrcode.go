// Package qrcode issues ticket codes that go into attendee QR codes.
package qrcode

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultPrefix marks a string as one of our tickets.
const DefaultPrefix = "EVT"

// Generator produces ticket codes. Implementations need not guarantee
// uniqueness; the store's unique index does.
type Generator interface {
	Generate() (string, error)
}

// UUIDGenerator builds codes from UUIDv7: 48 bits of millisecond time
// followed by 74 random bits, rendered as upper-case hex.
type UUIDGenerator struct {
	Prefix string
}

// New returns a UUIDGenerator, defaulting the prefix.
func New(prefix string) *UUIDGenerator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &UUIDGenerator{Prefix: prefix}
}

func (g *UUIDGenerator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate ticket code: %w", err)
	}
	return g.Prefix + "-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")), nil
}

// Func adapts a plain function to Generator.
type Func func() (string, error)

func (f Func) Generate() (string, error) { return f() }
