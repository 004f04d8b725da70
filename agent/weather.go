package agent

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

var knownCities = []string{
	"Amsterdam", "Athens", "Bangkok", "Barcelona", "Beijing", "Berlin",
	"Buenos Aires", "Cairo", "Cape Town", "Chicago", "Copenhagen", "Dubai",
	"Dublin", "Hong Kong", "Istanbul", "Jakarta", "Lagos", "Lisbon", "London",
	"Los Angeles", "Madrid", "Mexico City", "Moscow", "Mumbai", "Nairobi",
	"New York", "Oslo", "Paris", "Prague", "Rome", "San Francisco",
	"Santiago", "Seoul", "Singapore", "Stockholm", "Sydney", "Tokyo",
	"Toronto", "Vienna", "Warsaw", "Zurich",
}

var conditions = []string{"sunny", "partly cloudy", "overcast", "light rain", "thunderstorms", "foggy", "windy", "snow showers"}

// WeatherReport is the simulated observation returned by get_weather.
type WeatherReport struct {
	City        string `json:"city"`
	Condition   string `json:"condition"`
	Temperature int    `json:"temperatureC"`
	Humidity    int    `json:"humidity"`
	WindKPH     int    `json:"windKph"`
	ObservedAt  string `json:"observedAt"`
}

// matchCity resolves a free-form city name against the known cities.
func matchCity(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("missing required argument %q", "city")
	}
	for _, c := range knownCities {
		if strings.EqualFold(c, query) {
			return c, nil
		}
	}
	matches := fuzzy.Find(strings.ToLower(query), lowerCities)
	if len(matches) == 0 {
		return "", fmt.Errorf("unknown city %q", query)
	}
	return knownCities[matches[0].Index], nil
}

var lowerCities = func() []string {
	out := make([]string, len(knownCities))
	for i, c := range knownCities {
		out[i] = strings.ToLower(c)
	}
	return out
}()

// simulateWeather derives stable conditions for a city and hour, so repeated
// questions within the hour agree.
func simulateWeather(city string, at time.Time) WeatherReport {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s", city, at.UTC().Format("2006-01-02T15"))
	seed := h.Sum32()

	return WeatherReport{
		City:        city,
		Condition:   conditions[seed%uint32(len(conditions))],
		Temperature: int(seed>>8%45) - 10,
		Humidity:    20 + int(seed>>16%75),
		WindKPH:     int(seed >> 24 % 60),
		ObservedAt:  at.UTC().Truncate(time.Hour).Format(time.RFC3339),
	}
}
