// Package codes derives the human-readable sequential codes stamped on
// admission requests and lab orders. The two kinds live in independent
// sequence spaces: each has its own prefix, so an admission request and an
// order created on the same day never contend for the same number.
package codes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind selects the sequence space.
type Kind string

const (
	AdmissionKind Kind = "ADM"
	OrderKind     Kind = "ORD"
)

// MaxAttempts bounds the allocate-insert retry loop. Sequence computation and
// insert are not a single atomic step, so a concurrent writer can claim the
// candidate first; after this many unique-violation retries the caller gives
// up with a terminal error.
const MaxAttempts = 3

// suffixWidth is the zero-padded width of the numeric suffix.
const suffixWidth = 4

// DayPrefix returns the date-scoped prefix for a sequence space, e.g.
// "ORD-20260830-". The day is taken in the clinic's local zone.
func DayPrefix(kind Kind, t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%s-%s-", kind, t.Format("20060102"))
}

// Next computes the successor code for a prefix given every existing code
// sharing that prefix. Codes whose suffix does not parse count as 0, so a
// corrupt row never blocks allocation.
func Next(prefix string, existing []string) string {
	max := 0
	for _, code := range existing {
		n := suffix(prefix, code)
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, suffixWidth, max+1)
}

func suffix(prefix, code string) int {
	rest, ok := strings.CutPrefix(code, prefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
