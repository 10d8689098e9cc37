package format

import (
	"strconv"
	"time"
)

// Number abbreviates with K/M/B at 1e3/1e6/1e9. Negative values are never abbreviated.
func Number(n float64, decimals int) string {
	switch {
	case n >= 1e9:
		return fixed(n/1e9, decimals) + "B"
	case n >= 1e6:
		return fixed(n/1e6, decimals) + "M"
	case n >= 1e3:
		return fixed(n/1e3, decimals) + "K"
	}
	return fixed(n, decimals)
}

func Currency(n float64, decimals int) string {
	return "$" + Number(n, decimals)
}

// Percentage always carries a sign; zero is "+0.00%"
func Percentage(n float64, decimals int) string {
	if n == 0 {
		n = 0 // drops the sign of -0
	}
	sign := ""
	if n >= 0 {
		sign = "+"
	}
	return sign + fixed(n, decimals) + "%"
}

type Tone string

const (
	ToneUp   Tone = "up"
	ToneDown Tone = "down"
	ToneFlat Tone = "flat"
)

func ToneOf(pct float64) Tone {
	switch {
	case pct > 0:
		return ToneUp
	case pct < 0:
		return ToneDown
	}
	return ToneFlat
}

// Age renders "<n>m" under an hour and "<n>h" otherwise
func Age(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Hour {
		return strconv.Itoa(int(d/time.Minute)) + "m"
	}
	return strconv.Itoa(int(d/time.Hour)) + "h"
}

func fixed(n float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(n, 'f', decimals, 64)
}
