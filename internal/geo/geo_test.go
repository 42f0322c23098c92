package geo

import (
	"math"
	"testing"

	"fieldops/internal/model"
)

func TestMilesZeroForSamePoint(t *testing.T) {
	p := model.Coordinate{Lat: 33.45, Lng: -112.07}
	if d := Miles(p, p); d != 0 {
		t.Fatalf("same point: got %f", d)
	}
}

func TestMilesOneDegreeLongitudeAtEquator(t *testing.T) {
	a := model.Coordinate{Lat: 0, Lng: 10}
	b := model.Coordinate{Lat: 0, Lng: 11}
	d := Miles(a, b)
	// one degree of longitude at the equator is about 69.1 miles
	if math.Abs(d-69.1) > 0.5 {
		t.Fatalf("one degree longitude: got %f", d)
	}
}

func TestMilesSymmetric(t *testing.T) {
	a := model.Coordinate{Lat: 40.71, Lng: -74.0}
	b := model.Coordinate{Lat: 34.05, Lng: -118.24}
	if d1, d2 := Miles(a, b), Miles(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("asymmetric: %f vs %f", d1, d2)
	}
}

func TestTravelMinutes(t *testing.T) {
	if m := TravelMinutes(30, 30); m != 60 {
		t.Fatalf("30mi at 30mph: got %d", m)
	}
	if m := TravelMinutes(1, 30); m != 2 {
		t.Fatalf("1mi at 30mph: got %d (expect ceil)", m)
	}
	if m := TravelMinutes(0, 30); m != 0 {
		t.Fatalf("zero miles: got %d", m)
	}
	if m := TravelMinutes(10, 0); m != 0 {
		t.Fatalf("zero speed: got %d", m)
	}
}

func TestPathMilesSkipsUnknownStops(t *testing.T) {
	start := model.Coordinate{Lat: 0, Lng: 0.5}
	stops := []model.Coordinate{
		{Lat: 0, Lng: 1},
		{}, // unknown, skipped
		{Lat: 0, Lng: 2},
	}
	withGap := PathMiles(start, true, stops)
	direct := PathMiles(start, true, []model.Coordinate{{Lat: 0, Lng: 1}, {Lat: 0, Lng: 2}})
	if math.Abs(withGap-direct) > 1e-9 {
		t.Fatalf("unknown stop changed path length: %f vs %f", withGap, direct)
	}
}

func TestPathMilesWithoutStart(t *testing.T) {
	stops := []model.Coordinate{{Lat: 0, Lng: 1}, {Lat: 0, Lng: 2}}
	d := PathMiles(model.Coordinate{}, false, stops)
	want := Miles(stops[0], stops[1])
	if math.Abs(d-want) > 1e-9 {
		t.Fatalf("no-start path: got %f want %f", d, want)
	}
}
