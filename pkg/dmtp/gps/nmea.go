package gps

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uincore/opendmtp-sub000/internal/validator"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/event"
)

// knotsToKPH converts NMEA speed-over-ground (knots) to kph.
const knotsToKPH = 1.852

// sentence is one parsed, checksum-verified NMEA-0183 record.
type sentence struct {
	talkerAndType string
	fields        []string
}

// parseSentence verifies the trailing *HH checksum (if present) and
// splits the comma-delimited fields of a line that starts with "$GP" and
// has its trailing CR/LF already stripped.
func parseSentence(line []byte) (*sentence, error) {
	if len(line) == 0 {
		return nil, fmt.Errorf("gps: empty sentence")
	}
	if line[0] != '$' {
		return nil, fmt.Errorf("gps: sentence missing leading '$'")
	}
	if !strings.HasPrefix(string(line[1:]), "GP") {
		return nil, fmt.Errorf("gps: not a $GP sentence")
	}
	if err := validator.VerifyASCIIChecksum(line); err != nil {
		return nil, fmt.Errorf("gps: %w", err)
	}
	body := line[1:]
	if star := strings.IndexByte(string(body), '*'); star >= 0 {
		body = body[:star]
	}
	fields := strings.Split(string(body), ",")
	return &sentence{talkerAndType: fields[0], fields: fields}, nil
}

func parseLatLon(raw, hemi string, degreeDigits int) (float64, error) {
	if raw == "" {
		return 0, fmt.Errorf("gps: empty coordinate")
	}
	dot := strings.IndexByte(raw, '.')
	if dot < degreeDigits {
		return 0, fmt.Errorf("gps: malformed coordinate %q", raw)
	}
	deg, err := strconv.ParseFloat(raw[:degreeDigits], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(raw[degreeDigits:], 64)
	if err != nil {
		return 0, err
	}
	value := deg + min/60.0
	if hemi == "S" || hemi == "W" {
		value = -value
	}
	return value, nil
}

// parseRMCTime combines GPRMC's hhmmss.sss and ddmmyy fields into a unix
// timestamp.
func parseRMCTime(hhmmss, ddmmyy string) (int64, error) {
	if len(hhmmss) < 6 || len(ddmmyy) < 6 {
		return 0, fmt.Errorf("gps: malformed time/date")
	}
	hh, _ := strconv.Atoi(hhmmss[0:2])
	mm, _ := strconv.Atoi(hhmmss[2:4])
	ss, _ := strconv.Atoi(hhmmss[4:6])
	dd, _ := strconv.Atoi(ddmmyy[0:2])
	mo, _ := strconv.Atoi(ddmmyy[2:4])
	yy, _ := strconv.Atoi(ddmmyy[4:6])
	year := 2000 + yy
	t := time.Date(year, time.Month(mo), dd, hh, mm, ss, 0, time.UTC)
	return t.Unix(), nil
}

// RMC is the parsed content of a $GPRMC sentence.
type RMC struct {
	Valid      bool
	FixTime    int64
	Point      event.Point
	SpeedKPH   float64
	HeadingDeg float64
}

// ParseGPRMC parses a checksum-verified $GPRMC line.
func ParseGPRMC(line []byte) (*RMC, error) {
	s, err := parseSentence(line)
	if err != nil {
		return nil, err
	}
	if s.talkerAndType != "GPRMC" || len(s.fields) < 10 {
		return nil, fmt.Errorf("gps: not a GPRMC sentence")
	}
	r := &RMC{Valid: s.fields[2] == "A"}
	if !r.Valid {
		return r, nil
	}
	fixTime, err := parseRMCTime(s.fields[1], s.fields[9])
	if err != nil {
		return nil, err
	}
	lat, err := parseLatLon(s.fields[3], s.fields[4], 2)
	if err != nil {
		return nil, err
	}
	lon, err := parseLatLon(s.fields[5], s.fields[6], 3)
	if err != nil {
		return nil, err
	}
	speedKnots, _ := strconv.ParseFloat(s.fields[7], 64)
	heading, _ := strconv.ParseFloat(s.fields[8], 64)
	r.FixTime = fixTime
	r.Point = event.Point{Lat: lat, Lon: lon}
	r.SpeedKPH = speedKnots * knotsToKPH
	r.HeadingDeg = heading
	return r, nil
}

// GGA is the parsed content of a $GPGGA sentence.
type GGA struct {
	FixQuality int
	Satellites int
	HDOP       float64
	AltitudeM  float64
}

// ParseGPGGA parses a checksum-verified $GPGGA line.
func ParseGPGGA(line []byte) (*GGA, error) {
	s, err := parseSentence(line)
	if err != nil {
		return nil, err
	}
	if s.talkerAndType != "GPGGA" || len(s.fields) < 10 {
		return nil, fmt.Errorf("gps: not a GPGGA sentence")
	}
	quality, _ := strconv.Atoi(s.fields[6])
	sats, _ := strconv.Atoi(s.fields[7])
	hdop, _ := strconv.ParseFloat(s.fields[8], 64)
	alt, _ := strconv.ParseFloat(s.fields[9], 64)
	return &GGA{FixQuality: quality, Satellites: sats, HDOP: hdop, AltitudeM: alt}, nil
}

// GSA is the parsed content of a $GPGSA sentence.
type GSA struct {
	PDOP float64
	HDOP float64
	VDOP float64
}

// ParseGPGSA parses a checksum-verified $GPGSA line. The fix-type field
// (fields[2], '1'=no fix, '2'=2D, '3'=3D) is read but not used to gate
// whether DOPs are parsed: the original C source's guard
// ((*fld[2] != '2') || (*fld[2] != '3')) is always true for any single
// character, so DOPs are always parsed regardless of fix type. That
// behavior is preserved here rather than "fixed".
func ParseGPGSA(line []byte) (*GSA, error) {
	s, err := parseSentence(line)
	if err != nil {
		return nil, err
	}
	if s.talkerAndType != "GPGSA" || len(s.fields) < 18 {
		return nil, fmt.Errorf("gps: not a GPGSA sentence")
	}
	pdop, _ := strconv.ParseFloat(s.fields[15], 64)
	hdop, _ := strconv.ParseFloat(s.fields[16], 64)
	vdop, _ := strconv.ParseFloat(s.fields[17], 64)
	return &GSA{PDOP: pdop, HDOP: hdop, VDOP: vdop}, nil
}
