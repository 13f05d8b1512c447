package payment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mathrand "math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	referenceSuffixLen = 7
	referenceAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var methodPrefixes = map[Method]string{
	MethodEtegram:  "ETG",
	MethodPaystack: "PSK",
}

// ReferenceGenerator issues references of the form PREFIX-<unix ms>-<suffix>.
// The millisecond component never goes backwards within one generator.
type ReferenceGenerator struct {
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{now: time.Now}
}

// NewReferenceGeneratorWithClock is used by tests to pin the time source.
func NewReferenceGeneratorWithClock(now func() time.Time) *ReferenceGenerator {
	return &ReferenceGenerator{now: now}
}

func (g *ReferenceGenerator) Generate(method Method) (string, error) {
	prefix, ok := methodPrefixes[method]
	if !ok {
		return "", fmt.Errorf("unknown payment method %q", method)
	}

	return fmt.Sprintf("%s-%d-%s", prefix, g.nextMillis(), randomSuffix()), nil
}

func (g *ReferenceGenerator) nextMillis() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return ms
}

func randomSuffix() string {
	var b strings.Builder
	b.Grow(referenceSuffixLen)
	size := big.NewInt(int64(len(referenceAlphabet)))

	for i := 0; i < referenceSuffixLen; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			b.WriteByte(referenceAlphabet[mathrand.IntN(len(referenceAlphabet))])
			continue
		}
		b.WriteByte(referenceAlphabet[n.Int64()])
	}
	return b.String()
}

// MethodFromReference recovers the issuing method from a reference prefix.
func MethodFromReference(reference string) (Method, bool) {
	prefix, rest, ok := strings.Cut(reference, "-")
	if !ok || rest == "" {
		return "", false
	}
	for method, p := range methodPrefixes {
		if p == prefix {
			return method, true
		}
	}
	return "", false
}

// ReferenceTime extracts the issue time encoded in a reference.
func ReferenceTime(reference string) (time.Time, bool) {
	parts := strings.Split(reference, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
