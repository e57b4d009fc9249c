package statutory

import (
	"time"

	"github.com/warp/payroll-engine/formula"
)

// Relief repeal dates. These are fixed by statute, not read from formula
// data: configuration keeps the relief rows populated after repeal.
var (
	// Insurance relief on the legacy health-insurance fund ends with the
	// fund's replacement.
	LegacyHealthReliefCutoff = formula.NewDate(2024, time.October, 1)

	// Affordable housing relief repeal.
	HousingLevyReliefRepealed = formula.NewDate(2024, time.December, 27)
)

// reliefAllowed reports whether a relief with the given repeal date may be
// granted for a payment dated asOf.
func reliefAllowed(asOf, repealed formula.Date) bool {
	return asOf.Before(repealed)
}
