package domain

import (
	"strings"
	"time"
)

const (
	SeasonWinter  = "Winter"
	SeasonSummer  = "Summer"
	SeasonMonsoon = "Monsoon"
	SeasonSpring  = "Spring"
)

// seasonOrder fixes the lookup order for categories listed under more than
// one season (Antihistamine sells in summer and spring; the first match
// wins).
var seasonOrder = []string{SeasonWinter, SeasonMonsoon, SeasonSummer, SeasonSpring}

// seasonCategories maps each season to the categories stocked for it. This
// is configuration, enumerated once; the recommender and the seeder both
// read it and nothing re-derives it at query time.
var seasonCategories = map[string][]string{
	SeasonWinter:  {"Cough Syrup", "Cold Relief", "Throat Lozenges", "Decongestant", "Vitamin C"},
	SeasonMonsoon: {"Antifungal", "Antibiotic", "Antiseptic", "Anti-diarrheal", "Mosquito Repellent"},
	SeasonSummer:  {"Antacid", "Oral Rehydration", "Sunscreen", "Antihistamine", "Heat Rash Cream"},
	SeasonSpring:  {"Antihistamine", "Allergy Relief", "Eye Drops", "Nasal Spray"},
}

// monthSeasons is the calendar partition used to pick the current season.
// Data, not logic: the boundaries live only here.
var monthSeasons = map[time.Month]string{
	time.January:   SeasonWinter,
	time.February:  SeasonWinter,
	time.March:     SeasonSpring,
	time.April:     SeasonSpring,
	time.May:       SeasonSummer,
	time.June:      SeasonSummer,
	time.July:      SeasonMonsoon,
	time.August:    SeasonMonsoon,
	time.September: SeasonMonsoon,
	time.October:   SeasonSpring,
	time.November:  SeasonWinter,
	time.December:  SeasonWinter,
}

// SeasonForCategory returns the seasonal tag for a category, or "" when the
// category has no season (painkillers, chronic medication and the like).
// Matching is case-insensitive on the trimmed category name.
func SeasonForCategory(category string) string {
	needle := strings.ToLower(strings.TrimSpace(category))
	if needle == "" {
		return ""
	}
	for _, season := range seasonOrder {
		for _, candidate := range seasonCategories[season] {
			if strings.ToLower(candidate) == needle {
				return season
			}
		}
	}
	return ""
}

// SeasonForDate returns the season the given date falls in.
func SeasonForDate(t time.Time) string {
	if season, ok := monthSeasons[t.UTC().Month()]; ok {
		return season
	}
	return SeasonWinter
}

// Seasons lists the known seasons in lookup order.
func Seasons() []string {
	out := make([]string, len(seasonOrder))
	copy(out, seasonOrder)
	return out
}
