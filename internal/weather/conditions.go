package weather

// UnknownConditions is returned for codes outside the table
const UnknownConditions = "Unknown"

// WMO weather interpretation codes, see https://open-meteo.com/en/docs
var conditionCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// Describe converts a WMO weather code to a human-readable label
func Describe(code int) string {
	if label, ok := conditionCodes[code]; ok {
		return label
	}
	return UnknownConditions
}
