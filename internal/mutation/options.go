package mutation

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

const (
	optionsDecoderErrorTemplateConstant = "unable to prepare option decoder: %w"
	optionsDecodeErrorTemplateConstant  = "invalid handler options: %w"
	optionsTagNameConstant              = "mapstructure"
	optionsListSeparatorConstant        = ","
)

// DecodeOptions decodes the definition's "with" block into target. Unknown keys are rejected.
func DecodeOptions(options map[string]any, target any) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(optionsListSeparatorConstant),
		),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          optionsTagNameConstant,
		Result:           target,
	})
	if decoderError != nil {
		return fmt.Errorf(optionsDecoderErrorTemplateConstant, decoderError)
	}
	if decodeError := decoder.Decode(options); decodeError != nil {
		return fmt.Errorf(optionsDecodeErrorTemplateConstant, decodeError)
	}
	return nil
}
