package linecodec

import (
	"errors"
	"strconv"
	"strings"
)

const ledPrefix = "LED"

// LEDState is the ordered on/off value of each LED, index-aligned with LED
// position. Every entry is 0 or 1.
type LEDState []int

// String renders the state the way the daemon reports it, e.g. "LED 1 0 0 0".
func (s LEDState) String() string {
	var b strings.Builder
	b.WriteString(ledPrefix)
	for _, v := range s {
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// DecodeLED parses a GETLED reply. Accepted spellings include "LED 1 0 0 0",
// "LED: 1 0 0 0", "LED 1,0,0,0", "LED:1,0,0,0" and any letter case of the
// prefix. Tokens that are not integers are skipped; integers too large for
// int are still nonzero and read as 1.
//
// ok is false when the line does not start with LED or when no token parses;
// both cases are reported the same way.
func DecodeLED(raw string) (LEDState, bool) {
	s := strings.TrimSpace(raw)
	if len(s) < len(ledPrefix) || !strings.EqualFold(s[:len(ledPrefix)], ledPrefix) {
		return nil, false
	}

	rest := strings.TrimLeft(s[len(ledPrefix):], ": \t")
	rest = strings.ReplaceAll(rest, ",", " ")

	var leds LEDState
	for _, token := range strings.Fields(rest) {
		v, err := strconv.Atoi(token)
		if errors.Is(err, strconv.ErrRange) {
			leds = append(leds, 1)
			continue
		}
		if err != nil {
			continue
		}
		if v != 0 {
			leds = append(leds, 1)
		} else {
			leds = append(leds, 0)
		}
	}
	if len(leds) == 0 {
		return nil, false
	}
	return leds, true
}
