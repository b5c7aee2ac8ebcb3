package utils

import (
	"reflect"
	"strings"

	"github.com/EduForge-2025/cat-engine/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator with this engine's custom tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator with all custom tags registered.
func NewValidator() *Validator {
	validate := validator.New()
	RegisterCustomValidators(validate)
	return &Validator{validate: validate}
}

// Validate validates struct tags on s.
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// Custom validation functions

func ValidateDifficultyLevel(fl validator.FieldLevel) bool {
	validLevels := []models.DifficultyLevel{
		models.DifficultyBeginner,
		models.DifficultyIntermediate,
		models.DifficultyAdvanced,
		models.DifficultyExpert,
	}

	value := fl.Field().String()
	for _, validLevel := range validLevels {
		if string(validLevel) == value {
			return true
		}
	}
	return false
}

func ValidateSelectionStrategy(fl validator.FieldLevel) bool {
	validStrategies := []models.SelectionStrategy{
		models.SelectionMaximumInformation,
		models.SelectionRandom,
		models.SelectionContentBalanced,
		models.SelectionExposureControl,
	}

	value := fl.Field().String()
	for _, validStrategy := range validStrategies {
		if string(validStrategy) == value {
			return true
		}
	}
	return false
}

func ValidateTerminationCriteria(fl validator.FieldLevel) bool {
	validCriteria := []models.TerminationCriteria{
		models.TerminationFixedLength,
		models.TerminationPrecisionBased,
		models.TerminationTimeBased,
		models.TerminationConfidenceInterval,
	}

	value := fl.Field().String()
	for _, validCriterion := range validCriteria {
		if string(validCriterion) == value {
			return true
		}
	}
	return false
}

func ValidateScoringMethod(fl validator.FieldLevel) bool {
	validMethods := []models.ScoringMethod{
		models.ScoringPointsBased,
		models.ScoringThetaScaled,
	}

	value := fl.Field().String()
	for _, validMethod := range validMethods {
		if string(validMethod) == value {
			return true
		}
	}
	return false
}

func ValidateFlagType(fl validator.FieldLevel) bool {
	validTypes := []models.SecurityFlagType{
		models.FlagExternalHelpDetected,
		models.FlagCopyPasteDetected,
		models.FlagMultipleTabs,
		models.FlagSuspiciousTiming,
		models.FlagIPAddressChange,
		models.FlagUserAgentChange,
		models.FlagBrowserFocusLoss,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

// RegisterCustomValidators registers all custom validators
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("difficulty_level", ValidateDifficultyLevel)
	validate.RegisterValidation("selection_strategy", ValidateSelectionStrategy)
	validate.RegisterValidation("termination_criteria", ValidateTerminationCriteria)
	validate.RegisterValidation("scoring_method", ValidateScoringMethod)
	validate.RegisterValidation("flag_type", ValidateFlagType)

	// Register custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
