// Package prompt renders the questionnaire into the two instruction documents
// sent to the model: the draft plan request and the audit pass over it.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"fortifit-backend/internal/calendar"
	"fortifit-backend/internal/form"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// Context is the per-request data computed on the server, never by the model.
type Context struct {
	Now   calendar.TimeContext
	Event calendar.EventContext
}

type supplementsMode int

const (
	supplementsNone supplementsMode = iota
	supplementsAll
	supplementsSelected
)

type draftData struct {
	Now   calendar.TimeContext
	Event calendar.EventContext
	Flags Flags

	Name, Age, Sex, Weight, Height, Level string
	Activity, Sleep, Injuries            string

	Goal, GoalOther, EventInfo, EventDate, TargetWeight string

	TrainingDaysCount string
	ScheduleLines     string
	LocationsLine     string
	LocationOtherLine string
	DayLocationLines  string
	Equipment         string
	TrainingTypes     string
	FocusAreas        string
	ExtraGoals        string
	WorkoutLength     string

	DietChoice, ChosenDiet, DietIntent string
	FoodPrefs, Budget, CookingTime     string
	Somatotype, PortionSize            string

	Supplements     supplementsMode
	SupplementsText string
}

// SupplementsRequired is true when the plan must include a supplements section.
func (d draftData) SupplementsRequired() bool {
	return d.Supplements != supplementsNone
}

// SupplementsChosen is the user's own supplement list, if they gave one.
func (d draftData) SupplementsChosen() string {
	if d.Supplements != supplementsSelected {
		return ""
	}
	return d.SupplementsText
}

type auditData struct {
	Draft string
	Goal  string
	Event calendar.EventContext
}

// BuildDraft renders the stage-one instruction document. Missing answers
// degrade to fallback text; the result depends only on f and c.
func BuildDraft(f form.Form, c Context) string {
	if f == nil {
		f = form.Form{}
	}
	return render("draft.md.tmpl", newDraftData(f, c))
}

// BuildAudit renders the stage-two document that embeds draft verbatim and
// asks for a corrected, complete replacement.
func BuildAudit(draft string, f form.Form, c Context) string {
	if f == nil {
		f = form.Form{}
	}
	return render("audit.md.tmpl", auditData{
		Draft: draft,
		Goal:  f.Scalar("goal", form.DefaultFallback),
		Event: c.Event,
	})
}

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// Templates are embedded and data is typed; this is a programming error.
		panic(fmt.Sprintf("prompt: render %s: %v", name, err))
	}
	return buf.String()
}

func newDraftData(f form.Form, c Context) draftData {
	flags := DeriveFlags(f)
	pool := allowedPool(f)
	days := f.Strings("trainingDays")

	d := draftData{
		Now:   c.Now,
		Event: c.Event,
		Flags: flags,

		Name:     f.Scalar("name", "anonim"),
		Age:      f.Scalar("age", "?"),
		Sex:      f.Scalar("sex", "?"),
		Weight:   f.Scalar("weight", "?"),
		Height:   f.Scalar("height", "?"),
		Level:    f.Scalar("level", "?"),
		Activity: f.Scalar("activity", form.DefaultFallback),
		Sleep:    f.Scalar("sleepHours", "?"),
		Injuries: f.List("injuries", form.DefaultFallback),

		Goal:         f.Scalar("goal", "?"),
		EventInfo:    f.Scalar("eventInfo", form.DefaultFallback),
		EventDate:    f.Scalar("eventDate", "—"),
		TargetWeight: f.Scalar("targetWeight", form.DefaultFallback),

		TrainingDaysCount: f.Scalar("trainingDaysCount", "?"),
		ScheduleLines:     scheduleLines(f, days),
		LocationsLine:     "—",
		LocationOtherLine: "—",
		DayLocationLines:  dayLocationLines(f, pool, days),
		TrainingTypes:     f.List("trainingTypes", form.DefaultFallback),
		FocusAreas:        f.List("focusAreas", form.DefaultFallback),
		ExtraGoals:        f.List("extraGoals", form.DefaultFallback),
		WorkoutLength:     f.Scalar("workoutLength", "wg FortiFit"),

		DietChoice:  f.Scalar("dietChoice", "FortiFit"),
		ChosenDiet:  chosenDiet(f),
		DietIntent:  dietIntentNote(f),
		FoodPrefs:   f.Scalar("foodPrefsAllergies", form.DefaultFallback),
		Budget:      f.Scalar("budget", "wg FortiFit"),
		CookingTime: f.Scalar("cookingTime", "wg FortiFit"),
		Somatotype:  f.Scalar("somatotype", "—"),
		PortionSize: f.Scalar("portionSize", "wg preferencji"),
	}

	if goal(f) == GoalOther {
		d.GoalOther = f.Scalar("goalOther", form.DefaultFallback)
	}
	if len(pool) > 0 {
		d.LocationsLine = form.List(pool, "—")
	}
	if slices.Contains(pool, LocationOther) {
		d.LocationOtherLine = f.Scalar("locationOtherText", "—")
	}
	if flags.NeedsEquipment {
		d.Equipment = f.List("equipmentList", "brak – dobierz ćwiczenia bez sprzętu")
	} else {
		d.Equipment = "nie dotyczy (siłownia w jedynej puli)"
	}

	switch f.String("supplementsMode") {
	case "Tak":
		d.Supplements = supplementsAll
	case "Wybrane":
		d.Supplements = supplementsSelected
		d.SupplementsText = f.Scalar("supplementsText", "")
	}
	return d
}

func scheduleLines(f form.Form, days []string) string {
	if len(days) == 0 {
		return "  - —"
	}
	schedule := f.Map("trainingSchedule")
	lines := make([]string, 0, len(days))
	for _, day := range days {
		lines = append(lines, fmt.Sprintf("  - %s: %s", day, form.List(schedule[day], "—")))
	}
	return strings.Join(lines, "\n")
}

func dayLocationLines(f form.Form, pool []string, days []string) string {
	if len(days) == 0 {
		return "  - —"
	}
	lines := make([]string, 0, len(days))
	for _, day := range days {
		place, ok := dayLocation(f, pool, day)
		if !ok {
			place = "— (dobierz z listy multi)"
		}
		lines = append(lines, fmt.Sprintf("  - %s: %s", day, place))
	}
	return strings.Join(lines, "\n")
}
