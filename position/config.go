package position

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ZoneConfig is a restriction zone as it appears in the configuration file.
// Rectangles use X,Y,X2,Y2 as corners; circles use X,Y as center and R as radius.
type ZoneConfig struct {
	Shape string  `mapstructure:"shape" validate:"required,oneof=rect circle"`
	Type  string  `mapstructure:"type" validate:"required,oneof=required forbidden"`
	X     float64 `mapstructure:"x"`
	Y     float64 `mapstructure:"y"`
	X2    float64 `mapstructure:"x2"`
	Y2    float64 `mapstructure:"y2"`
	R     float64 `mapstructure:"r" validate:"gte=0"`
}

func (c ZoneConfig) Zone() (Zone, error) {
	if err := validate.Struct(c); err != nil {
		return Zone{}, fmt.Errorf("invalid zone: %w", err)
	}

	kind := Kind(c.Type)
	if Shape(c.Shape) == ShapeCircle {
		return Circle(kind, c.X, c.Y, c.R), nil
	}
	return Rect(kind, c.X, c.Y, c.X2, c.Y2), nil
}

// ParseRestrictions builds a RestrictionSet from configured zones, keeping their order.
func ParseRestrictions(cfgs []ZoneConfig) (RestrictionSet, error) {
	zones := make([]Zone, 0, len(cfgs))
	for i, c := range cfgs {
		z, err := c.Zone()
		if err != nil {
			return RestrictionSet{}, fmt.Errorf("fail to parse restriction %d: %w", i, err)
		}
		zones = append(zones, z)
	}
	return RestrictionSet{zones: zones}, nil
}
