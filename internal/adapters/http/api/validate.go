package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

const maxBodyBytes = 1 << 20

// Validate checks decoded request bodies.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("narrative", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= pipeline.MinNarrativeLength
	})
	_ = v.RegisterValidation("competency", func(fl validator.FieldLevel) bool {
		_, err := types.ResolveCompetency(fl.Field().String())
		return err == nil
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return WrapKind(ErrBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}
	if err := Validate.Struct(dst); err != nil {
		return WrapKind(ErrBadRequest, describe(err))
	}
	return nil
}

// describe turns validator failures into one readable message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "narrative":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %d characters", field, pipeline.MinNarrativeLength))
		case "competency":
			msgs = append(msgs, fmt.Sprintf("%s: unknown competency %q", field, fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
