// Package capacity implements the pure seat-accounting rules for events:
// whether an event is full, how many seats remain, and how far an
// administrator may raise the manual attendee counter. It performs no I/O.
package capacity

import "math"

// UnlimitedSentinel is the stored capacity value that means "no limit".
// It is part of the storage contract and must only be interpreted here;
// the rest of the system works with the Capacity type.
const UnlimitedSentinel = 500

// Unbounded is returned by MaxManualAdjustment and RemainingAfterDraft
// for unlimited events. Large enough to never clamp a real input.
const Unbounded = math.MaxInt32

// Capacity is an event's seat limit: either a concrete number of seats
// or unlimited. The numeric sentinel encoding exists only at the storage
// boundary; convert with FromStored/Stored.
type Capacity struct {
	seats     int
	unlimited bool
}

// Limited returns a capacity of n seats. Negative n is treated as zero.
func Limited(n int) Capacity {
	if n < 0 {
		n = 0
	}
	return Capacity{seats: n}
}

// Unlimited returns a capacity with no seat limit.
func Unlimited() Capacity {
	return Capacity{unlimited: true}
}

// FromStored decodes a stored capacity value, mapping the sentinel to
// unlimited.
func FromStored(v int) Capacity {
	if v == UnlimitedSentinel {
		return Unlimited()
	}
	return Limited(v)
}

// Stored encodes the capacity back to its storage representation.
func (c Capacity) Stored() int {
	if c.unlimited {
		return UnlimitedSentinel
	}
	return c.seats
}

// IsUnlimited reports whether the capacity has no seat limit.
func (c Capacity) IsUnlimited() bool {
	return c.unlimited
}

// Seats returns the seat limit for a limited capacity; zero for unlimited.
func (c Capacity) Seats() int {
	if c.unlimited {
		return 0
	}
	return c.seats
}

// TotalCount is the number of seats considered taken: ledger
// registrations plus the administrator-entered manual count.
func TotalCount(manualCount, realCount int) int {
	return manualCount + realCount
}

// IsFull reports whether no seats remain. Unlimited events and events
// with a zero capacity are never full.
func IsFull(c Capacity, manualCount, realCount int) bool {
	if c.unlimited || c.seats <= 0 {
		return false
	}
	return TotalCount(manualCount, realCount) >= c.seats
}

// MaxManualAdjustment is the highest value an administrator may set the
// manual counter to without exceeding the seats left after real
// registrations. Unbounded for unlimited events.
func MaxManualAdjustment(c Capacity, realCount int) int {
	if c.unlimited {
		return Unbounded
	}
	if remaining := c.seats - realCount; remaining > 0 {
		return remaining
	}
	return 0
}

// ClampManualAdjustment forces a draft manual count into the valid
// range [0, MaxManualAdjustment].
func ClampManualAdjustment(c Capacity, realCount, draft int) int {
	if draft < 0 {
		return 0
	}
	if max := MaxManualAdjustment(c, realCount); draft > max {
		return max
	}
	return draft
}

// RemainingAfterDraft is the number of free seats assuming the draft
// manual count were committed. Unbounded for unlimited events, never
// negative otherwise.
func RemainingAfterDraft(c Capacity, realCount, draft int) int {
	if c.unlimited {
		return Unbounded
	}
	if remaining := c.seats - realCount - draft; remaining > 0 {
		return remaining
	}
	return 0
}
