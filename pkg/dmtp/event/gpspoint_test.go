package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint6RoundTrip(t *testing.T) {
	p := Point{Lat: 37.7749, Lon: -122.4194}
	enc := EncodePoint6(p)
	got := DecodePoint6(enc)
	assert.InDelta(t, p.Lat, got.Lat, 180.0/(1<<24-1))
	assert.InDelta(t, p.Lon, got.Lon, 360.0/(1<<24-1))
}

func TestPoint8RoundTrip(t *testing.T) {
	p := Point{Lat: -33.8688, Lon: 151.2093}
	enc := EncodePoint8(p)
	got := DecodePoint8(enc)
	assert.InDelta(t, p.Lat, got.Lat, 180.0/(1<<32-1))
	assert.InDelta(t, p.Lon, got.Lon, 360.0/(1<<32-1))
}

func TestPointInvalidRoundTripsToZero(t *testing.T) {
	p := Point{}
	assert.Equal(t, Point{}, DecodePoint6(EncodePoint6(p)))
	assert.Equal(t, Point{}, DecodePoint8(EncodePoint8(p)))
}
