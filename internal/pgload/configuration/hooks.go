package configuration

import (
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// CustomHooks are the decode hooks used when unmarshalling configuration with viper.
// Passing a DecodeHook replaces viper's defaults, so the standard duration and slice hooks are included.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		PacingRangeHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

// PacingRangeHookFunc decodes strings of the form "10ms..100ms" into a PacingRange.
// A single duration such as "50ms" yields a fixed delay.
func PacingRangeHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(PacingRange{}) {
			return data, nil
		}
		return ParsePacingRange(data.(string))
	}
}

// ParsePacingRange parses "min..max" or a single duration.
func ParsePacingRange(s string) (PacingRange, error) {
	lower, upper, found := strings.Cut(strings.TrimSpace(s), "..")
	if !found {
		upper = lower
	}
	min, err := time.ParseDuration(strings.TrimSpace(lower))
	if err != nil {
		return PacingRange{}, errors.Wrapf(err, "invalid pacing range %q", s)
	}
	max, err := time.ParseDuration(strings.TrimSpace(upper))
	if err != nil {
		return PacingRange{}, errors.Wrapf(err, "invalid pacing range %q", s)
	}
	if max < min {
		return PacingRange{}, errors.Errorf("invalid pacing range %q: max is less than min", s)
	}
	return PacingRange{Min: min, Max: max}, nil
}
