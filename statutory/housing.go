package statutory

import (
	"context"

	"github.com/warp/payroll-engine/formula"
)

// HousingLevy is a percentage of salary charged to both employee and
// employer. Its relief is forced to zero from HousingLevyReliefRepealed
// whatever the relief row says.
type HousingLevy struct {
	Deps
}

func NewHousingLevy(deps Deps) *HousingLevy {
	return &HousingLevy{Deps: deps}
}

func (c *HousingLevy) Calculate(ctx context.Context, in Input) (res Result, err error) {
	defer c.recoverInto(ctx, ComponentHousingLevy, &res, &err)
	return c.contribution(ctx, ComponentHousingLevy,
		formula.TypeLevy, formula.CategoryHousingLevy, in,
		reliefAllowed(in.AsOf, HousingLevyReliefRepealed))
}
