package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// CodeGenerator generates unique, sortable codes for escrow entries and
// payouts. ULIDs keep codes lexicographically ordered by creation time,
// which matches the FIFO consumption order of escrow entries.
type CodeGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate produces a prefixed code, e.g. ESC-01ARZ3NDEKTSV4RRFFQ69G5FAV.
func (g *CodeGenerator) Generate(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return fmt.Sprintf("%s-%s", strings.ToUpper(prefix), id.String())
}

// EntryCode generates an escrow entry code.
// Format: ESC-{ULID}
func (g *CodeGenerator) EntryCode() string {
	return g.Generate("ESC")
}

// PayoutCode generates a payout code.
// Format: PAY-{ULID}
func (g *CodeGenerator) PayoutCode() string {
	return g.Generate("PAY")
}

// ValidateCode checks a prefixed code against the expected prefix and a
// parseable ULID body.
func ValidateCode(code, prefix string) bool {
	parts := strings.SplitN(code, "-", 2)
	if len(parts) != 2 || parts[0] != strings.ToUpper(prefix) {
		return false
	}
	if len(parts[1]) != 26 {
		return false
	}
	_, err := ulid.Parse(parts[1])
	return err == nil
}
