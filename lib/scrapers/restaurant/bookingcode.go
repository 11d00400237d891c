package restaurant

import (
	"fmt"
	"strconv"

	"nightout/lib/textutil"
)

// BookingCode is the restaurant backend's compact encoding of a
// bookable slot: a 3-letter weekday prefix followed by a 2-digit start
// hour ("fri18"). Some backends append the end hour as well; anything
// past the first five characters is ignored on decode.
type BookingCode string

func EncodeBookingCode(day string, hour int) (BookingCode, error) {
	prefix := textutil.DayPrefix(day)
	if len(prefix) != 3 {
		return "", fmt.Errorf("cannot derive a 3-letter prefix from day %q", day)
	}
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("hour %d out of range", hour)
	}
	return BookingCode(fmt.Sprintf("%s%02d", prefix, hour)), nil
}

func (c BookingCode) Decode() (dayPrefix string, hour int, err error) {
	if len(c) < 5 {
		return "", 0, fmt.Errorf("booking code %q too short", c)
	}
	hour, err = strconv.Atoi(string(c[3:5]))
	if err != nil {
		return "", 0, fmt.Errorf("booking code %q has a malformed hour: %w", c, err)
	}
	if hour < 0 || hour > 23 {
		return "", 0, fmt.Errorf("booking code %q hour out of range", c)
	}
	return string(c[:3]), hour, nil
}

// Window is one bookable dinner slot, always a full hour.
type Window struct {
	StartHour int
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", w.StartHour, w.StartHour+1)
}
