package timeutil

import (
	"time"

	"golang.org/x/exp/constraints"
)

var saoPauloLocation = loadLocation()

func loadLocation() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("America/Sao_Paulo", -3*60*60)
	}
	return loc
}

// Now returns the current time in America/Sao_Paulo.
func Now() time.Time {
	return time.Now().In(saoPauloLocation)
}

// Local converts t to America/Sao_Paulo.
func Local(t time.Time) time.Time {
	return t.In(saoPauloLocation)
}

func Location() *time.Location {
	return saoPauloLocation
}

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FormatCountdown renders d as MM:SS, rounding up partial seconds.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return twoDigits(secs/60) + ":" + twoDigits(secs%60)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	if n > 99 {
		n = 99
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
