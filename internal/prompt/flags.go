package prompt

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"fortifit-backend/internal/form"
)

// Training locations offered by the questionnaire.
const (
	LocationGym   = "Siłownia"
	LocationHome  = "Dom"
	LocationOut   = "Plener"
	LocationPool  = "Basen"
	LocationOther = "Inne"
)

// Goals that make a target weight meaningful.
const (
	GoalReduction = "redukcja"
	GoalMass      = "masa"
	GoalOther     = "inne"
)

var (
	mealPrepPattern      = regexp.MustCompile(`(?i)meal[-_\s]?prep`)
	reductionDietPattern = regexp.MustCompile(`(?i)na[_\s-]?redukcj`)
	massDietPattern      = regexp.MustCompile(`(?i)na[_\s-]?mas`)
)

// Flags are the policy switches derived from a form before rendering.
type Flags struct {
	// MealPrep: the user batch-cooks 2-3 times a week instead of daily.
	MealPrep bool
	// ShowTargetWeight: a numeric target weight was given for a reduction or mass goal.
	ShowTargetWeight bool
	// NeedsEquipment: some selected or mapped location is not the gym.
	NeedsEquipment bool
}

// DeriveFlags computes Flags from the raw answers.
func DeriveFlags(f form.Form) Flags {
	return Flags{
		MealPrep:         mealPrepPattern.MatchString(f.String("cookingTime")),
		ShowTargetWeight: hasNumericTargetWeight(f) && isWeightGoal(goal(f)),
		NeedsEquipment:   needsEquipment(f),
	}
}

func goal(f form.Form) string {
	return strings.TrimSpace(f.String("goal"))
}

func isWeightGoal(g string) bool {
	return g == GoalReduction || g == GoalMass
}

func hasNumericTargetWeight(f form.Form) bool {
	s := form.Scalar(f["targetWeight"], "")
	if s == "" {
		return false
	}
	w, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return err == nil && w > 0
}

func needsEquipment(f form.Form) bool {
	for _, place := range allowedPool(f) {
		if isOutOfGym(place) {
			return true
		}
	}
	for _, v := range f.Map("dayLocationMap") {
		if isOutOfGym(form.Scalar(v, "")) {
			return true
		}
	}
	return false
}

func isOutOfGym(place string) bool {
	return place != "" && place != LocationGym
}

// allowedPool is the closed set of locations the user selected. Nothing
// outside it may be assigned to a training day.
func allowedPool(f form.Form) []string {
	var pool []string
	for _, p := range f.Strings("locationsMulti") {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(pool, p) {
			pool = append(pool, p)
		}
	}
	return pool
}

// dayLocation returns the mapped location for day when it belongs to pool.
func dayLocation(f form.Form, pool []string, day string) (string, bool) {
	place := form.Scalar(f.Map("dayLocationMap")[day], "")
	if place == "" || !slices.Contains(pool, place) {
		return "", false
	}
	return place, true
}

// chosenDiet is the user's own diet type when they picked it themselves.
func chosenDiet(f form.Form) string {
	if strings.Contains(strings.ToLower(f.String("dietChoice")), "sam") {
		return f.Scalar("dietType", form.DefaultFallback)
	}
	return "FortiFit dobiera"
}

func dietIntentNote(f form.Form) string {
	dietType := f.String("dietType")
	switch g := goal(f); {
	case reductionDietPattern.MatchString(dietType) || g == GoalReduction:
		return "Dieta ukierunkowana na redukcję: deficyt kcal, wysokie białko."
	case massDietPattern.MatchString(dietType) || g == GoalMass:
		return "Dieta ukierunkowana na budowę masy: kontrolowana nadwyżka kcal, wysokie białko."
	default:
		return ""
	}
}
