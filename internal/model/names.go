package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// Event names that carry fixed meaning for the engine.
const (
	NameSunrise = "sunrise"
	NameFajr    = "fajr"
	NameDhuhr   = "dhuhr"
	NameAsr     = "asr"
	NameMaghrib = "maghrib"
	NameIsha    = "isha"
)

var folder = cases.Fold()

// FoldName normalizes an event name for case-insensitive matching between the
// calendar table and configuration ("Athkar_Elsabah" == "athkar_elsabah").
func FoldName(name string) string {
	return folder.String(strings.TrimSpace(name))
}
