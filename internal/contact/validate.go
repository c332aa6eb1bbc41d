package contact

import (
	"regexp"
	"slices"
	"unicode/utf8"
)

// Field names a contact form field.
type Field string

const (
	FieldName    Field = "name"
	FieldEmail   Field = "email"
	FieldPhone   Field = "phone"
	FieldService Field = "service"
	FieldMessage Field = "message"
)

// ErrorCode is a symbolic validation message key resolved by the i18n catalog.
type ErrorCode string

const (
	ErrNameInvalid    ErrorCode = "validation.nameError"
	ErrEmailInvalid   ErrorCode = "validation.emailError"
	ErrPhoneInvalid   ErrorCode = "validation.phoneError"
	ErrServiceInvalid ErrorCode = "validation.serviceError"
	ErrMessageInvalid ErrorCode = "validation.messageError"
)

// MinMessageLength is the minimum trimmed length of the project details.
const MinMessageLength = 10

// Services is the closed set of service names accepted by the form.
var Services = []string{
	"Patios",
	"Driveways",
	"Walkways",
	"Sidewalks",
	"Concrete Reinforced",
	"Stamped Concrete",
	"Other",
}

var (
	// Letters (ASCII and Latin-1 accented), whitespace, hyphen and apostrophe.
	nameRe = regexp.MustCompile(`^[a-zA-Z\x{00C0}-\x{00FF}\s\v\p{Zs}'-]{2,}$`)

	// Deliberately loose; only rejects obvious non-addresses.
	emailRe = regexp.MustCompile(`^[^\s\v\p{Zs}@]+@[^\s\v\p{Zs}@]+\.[^\s\v\p{Zs}@]+$`)
)

// ValidationResult reports per-field failures. Errors only holds failed fields.
type ValidationResult struct {
	IsValid bool                `json:"isValid"`
	Errors  map[Field]ErrorCode `json:"errors"`
}

func IsValidName(s string) bool {
	if s == "" {
		return false
	}
	return nameRe.MatchString(trim(s))
}

func IsValidEmail(s string) bool {
	if s == "" {
		return false
	}
	return emailRe.MatchString(trim(s))
}

// IsValidPhone accepts North American numbers in any punctuation: 10 digits,
// or 11 with a leading country code of 1.
func IsValidPhone(s string) bool {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	return len(digits) == 10 || (len(digits) == 11 && digits[0] == '1')
}

func IsValidMessage(s string) bool {
	return utf8.RuneCountInString(trim(s)) >= MinMessageLength
}

func IsValidService(s string) bool {
	return s != "" && slices.Contains(Services, s)
}

// ValidateFormData checks every field independently so callers can report all
// failures at once.
func ValidateFormData(data FormData) ValidationResult {
	errs := make(map[Field]ErrorCode)

	if !IsValidName(data.Name) {
		errs[FieldName] = ErrNameInvalid
	}
	if !IsValidEmail(data.Email) {
		errs[FieldEmail] = ErrEmailInvalid
	}
	if !IsValidPhone(data.Phone) {
		errs[FieldPhone] = ErrPhoneInvalid
	}
	if !IsValidService(data.Service) {
		errs[FieldService] = ErrServiceInvalid
	}
	if !IsValidMessage(data.Message) {
		errs[FieldMessage] = ErrMessageInvalid
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
