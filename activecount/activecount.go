// Package activecount implements the active-count policy: total
// endpoint count -> desired number of connected (acquired) endpoints.
// Consulted on every IDLE entry and on every new endpoint admission by
// the controller's governor.
package activecount

// Policy maps the total number of known endpoints to how many should be
// acquired (CONNECTING or CONNECTED).
type Policy func(total int) int

// Identity is the default policy: every known endpoint should be
// active.
func Identity() Policy {
	return func(total int) int { return total }
}

// Fixed always targets exactly n acquired endpoints, regardless of how
// many are known (capped implicitly by the pool's actual size).
func Fixed(n int) Policy {
	return func(int) int { return n }
}

// Fraction targets ceil(total * f) acquired endpoints, f in (0, 1].
func Fraction(f float64) Policy {
	return func(total int) int {
		if f <= 0 {
			return 0
		}
		n := int(float64(total)*f + 0.999999)
		if n > total {
			n = total
		}
		return n
	}
}
