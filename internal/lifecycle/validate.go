package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/alerthub-service/internal/domain"
)

// CreateRequest is a report submission as received from the API.
type CreateRequest struct {
	DisasterType string  `form:"DisasterType" validate:"required,disaster_type"`
	Longitude    float64 `form:"Longitude" validate:"lon"`
	Latitude     float64 `form:"Latitude" validate:"lat"`
	Description  string  `form:"Description" validate:"description"`
	Culture      string  `form:"Culture" validate:"required,culture"`
	UserID       string  `form:"UserId" validate:"user_id"`
	Image        *Image  `form:"ImageFile"`
}

// Image is an optional photo attached to a submission.
type Image struct {
	ContentType string    `form:"ImageFile" validate:"required,image_type"`
	Body        io.Reader `validate:"-"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("form"); name != "" {
			return name
		}
		return fld.Name
	})

	v.RegisterAlias("description", "max="+strconv.Itoa(domain.MaxDescriptionLen))
	v.RegisterAlias("user_id", "required,max="+strconv.Itoa(domain.MaxUserIDLen))
	v.RegisterValidation("disaster_type", validateDisasterType)
	v.RegisterValidation("lon", validateLongitude)
	v.RegisterValidation("lat", validateLatitude)
	v.RegisterValidation("culture", validateCulture)
	v.RegisterValidation("image_type", validateImageType)
	return v
}

func validateDisasterType(fl validator.FieldLevel) bool {
	_, err := domain.ParseDisasterType(fl.Field().String())
	return err == nil
}

func validateLongitude(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && v >= -180 && v <= 180
}

func validateLatitude(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && v >= -90 && v <= 90
}

func validateCulture(fl validator.FieldLevel) bool {
	return domain.IsRecognizedCulture(fl.Field().String())
}

// imageIDLen is the length of the random part of a stored image name.
const imageIDLen = 36

// validateImageType accepts image/* types whose stored name fits the schema.
func validateImageType(fl validator.FieldLevel) bool {
	ext := imageExtension(fl.Field().String())
	return ext != "" && imageIDLen+1+len(ext) <= domain.MaxImageNameLen
}

// imageExtension derives a file extension from an image/* content type:
// "image/png" → "png", "image/svg+xml" → "svg". Anything else yields "".
func imageExtension(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	sub, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
	if !ok {
		return ""
	}
	sub, _, _ = strings.Cut(sub, "+")
	if sub == "" || strings.ContainsAny(sub, `/\.`) {
		return ""
	}
	return sub
}

// Validate checks req without storing anything. Failures come back as a
// *domain.ValidationError keyed by API field name.
func (c *Coordinator) Validate(req CreateRequest) error {
	err := c.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate report: %w", err)
	}
	ve := domain.NewValidationError()
	for _, fe := range verrs {
		ve.Add(fe.Field(), message(fe))
	}
	return ve.OrNil()
}

func message(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "disaster_type":
		return "unknown disaster type"
	case "lon":
		return "must be between -180 and 180"
	case "lat":
		return "must be between -90 and 90"
	case "culture":
		return "unsupported culture"
	case "image_type":
		return "must be an image"
	default:
		return "is invalid"
	}
}
