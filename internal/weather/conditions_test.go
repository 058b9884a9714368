package weather

import "testing"

func TestDescribeKnownCodes(t *testing.T) {
	tests := map[int]string{
		0:  "Clear sky",
		2:  "Partly cloudy",
		45: "Foggy",
		55: "Dense drizzle",
		65: "Heavy rain",
		75: "Heavy snow",
		82: "Violent rain showers",
		95: "Thunderstorm",
		99: "Thunderstorm with heavy hail",
	}

	for code, want := range tests {
		if got := Describe(code); got != want {
			t.Errorf("Describe(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestDescribeUnknownCodes(t *testing.T) {
	for _, code := range []int{-1, 4, 44, 50, 66, 77, 100, 1000} {
		if got := Describe(code); got != UnknownConditions {
			t.Errorf("Describe(%d) = %q, want %q", code, got, UnknownConditions)
		}
	}
}

func TestDescribeIsDeterministic(t *testing.T) {
	for code := range conditionCodes {
		first := Describe(code)
		if first == "" {
			t.Fatalf("Describe(%d) returned empty label", code)
		}
		for i := 0; i < 3; i++ {
			if got := Describe(code); got != first {
				t.Fatalf("Describe(%d) changed from %q to %q", code, first, got)
			}
		}
	}
}
