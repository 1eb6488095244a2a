package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// numberPrefix starts every order number; the rest is yymmdd plus a four
// digit random suffix, e.g. BB2506174821.
const numberPrefix = "BB"

// maxNumberAttempts bounds the regenerate-on-collision loop during order
// persistence. The suffix space makes exhaustion vanishingly unlikely; if it
// happens anyway the orchestrator fails with ErrNumberExhausted instead of
// looping forever.
const maxNumberAttempts = 5

// NewOrderNumber produces a candidate order number for the given time.
// Uniqueness is enforced at persistence: the orders table carries a unique
// constraint on the number and the orchestrator regenerates on collision.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s%s%04d", numberPrefix, now.Format("060102"), rand.IntN(10000))
}
