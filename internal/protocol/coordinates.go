package protocol

import "math"

// CourseStatus is the decoded form of the course/status u16 BE word that
// trails the speed byte in LOCATION and ALARM content.
type CourseStatus struct {
	CourseDeg float64
	South     bool // bit 10: southern latitude
	West      bool // bit 11: western longitude
	GPSValid  bool // bit 12: GPS fix valid
}

// EncodeCoordinate scales an absolute-value degree coordinate the way the
// wire expects: round(|deg| * 30000 * 60). The hemisphere is not carried
// here — it lives in the course/status word's bit 10 / bit 11.
//
// EncodeCoordinate(23.55052) == 42390936.
func EncodeCoordinate(absDeg float64) uint32 {
	return uint32(math.Round(math.Abs(absDeg) * 30000 * 60))
}

// DecodeCoordinate is the inverse of EncodeCoordinate; the caller applies
// the hemisphere sign from the course/status word.
func DecodeCoordinate(raw uint32) float64 {
	return float64(raw) / 30000 / 60
}

// EncodeCourseStatus packs course/status into the u16 BE wire word. Course
// is normalized into 0..359 then floor-divided by 10 into the low 10 bits.
func EncodeCourseStatus(cs CourseStatus) uint16 {
	course := math.Mod(cs.CourseDeg, 360)
	if course < 0 {
		course += 360
	}
	word := uint16(math.Floor(course/10)) & 0x03FF
	if cs.South {
		word |= 1 << 10
	}
	if cs.West {
		word |= 1 << 11
	}
	if cs.GPSValid {
		word |= 1 << 12
	}
	return word
}

// DecodeCourseStatus unpacks the u16 BE wire word. The returned CourseDeg
// is the coarse value the wire actually carries (multiples of 10).
func DecodeCourseStatus(word uint16) CourseStatus {
	return CourseStatus{
		CourseDeg: float64(word&0x03FF) * 10,
		South:     word&(1<<10) != 0,
		West:      word&(1<<11) != 0,
		GPSValid:  word&(1<<12) != 0,
	}
}

// ClampSpeedKMH clamps a speed in km/h into the single byte the wire
// carries it in (0..255).
func ClampSpeedKMH(speedKMH float64) byte {
	if speedKMH < 0 {
		return 0
	}
	if speedKMH > 255 {
		return 255
	}
	return byte(math.Round(speedKMH))
}
