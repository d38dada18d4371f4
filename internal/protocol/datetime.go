package protocol

import (
	"fmt"
	"time"
)

// EncodeDateTime packs a UTC timestamp into the 6-byte YY MM DD hh mm ss
// form used at the front of LOCATION and ALARM content.
func EncodeDateTime(t time.Time) [6]byte {
	u := t.UTC()
	return [6]byte{
		byte(u.Year() % 100),
		byte(u.Month()),
		byte(u.Day()),
		byte(u.Hour()),
		byte(u.Minute()),
		byte(u.Second()),
	}
}

// DecodeDateTime unpacks the 6-byte YY MM DD hh mm ss form into a UTC
// timestamp, assuming the 2000s century.
func DecodeDateTime(b [6]byte) (time.Time, error) {
	year, month, day := 2000+int(b[0]), time.Month(b[1]), int(b[2])
	hour, min, sec := int(b[3]), int(b[4]), int(b[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("protocol: implausible date/time %02d-%02d-%02d %02d:%02d:%02d", year%100, month, day, hour, min, sec)
	}
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC), nil
}
