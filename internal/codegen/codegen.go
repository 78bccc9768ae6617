// Package codegen allocates short public verification codes.
package codegen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/YannKr/certstamp/internal/apperr"
)

// Alphabet omits 0/O, 1/I/L so codes survive being read aloud or retyped.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	DefaultLength      = 10
	DefaultMaxAttempts = 5
)

// Reserver atomically claims a code. It returns false without error when the
// code is already taken.
type Reserver interface {
	Reserve(ctx context.Context, code string) (bool, error)
}

type ReserverFunc func(ctx context.Context, code string) (bool, error)

func (f ReserverFunc) Reserve(ctx context.Context, code string) (bool, error) { return f(ctx, code) }

type Generator struct {
	Reserver    Reserver
	Length      int
	MaxAttempts int
	Rand        io.Reader
}

func New(r Reserver) *Generator {
	return &Generator{Reserver: r, Length: DefaultLength, MaxAttempts: DefaultMaxAttempts, Rand: rand.Reader}
}

// Generate returns a code that has been reserved in the store. After
// MaxAttempts collisions it fails with ErrCodeSpaceExhaust.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.candidate()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		ok, err := g.Reserver.Reserve(ctx, code)
		if err != nil {
			return "", apperr.Storage(err)
		}
		if ok {
			return code, nil
		}
		slog.Debug("code collision", "attempt", i+1)
	}
	return "", apperr.ErrCodeSpaceExhaust.WithMessage("no free code after %d attempts", attempts)
}

func (g *Generator) candidate() (string, error) {
	n := g.Length
	if n <= 0 {
		n = DefaultLength
	}
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, n)
	out := make([]byte, n)
	// Rejection sampling keeps the distribution uniform over the alphabet.
	limit := byte(256 - 256%len(Alphabet))
	for i := 0; i < n; {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out[i] = Alphabet[int(b)%len(Alphabet)]
			i++
			if i == n {
				break
			}
		}
	}
	return string(out), nil
}

// Normalize upper-cases and trims user input so lookups are
// case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code could have been produced by a generator of the
// given length.
func Valid(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
