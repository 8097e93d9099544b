package bookform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Field names as used by the HTML form and in FieldErrors.
const (
	FieldTitle           = "title"
	FieldAuthor          = "author"
	FieldPublicationYear = "publicationYear"
	FieldISBN            = "isbn"
	FieldDescription     = "description"
	FieldThumbnail       = "thumbnail"
)

const minPublicationYear = 1000

// Values is the raw, string-typed content of the book form.
type Values struct {
	Title           string `form:"title" json:"title" validate:"required,min=2,max=100"`
	Author          string `form:"author" json:"author" validate:"required,min=2,max=50"`
	PublicationYear string `form:"publicationYear" json:"publicationYear" validate:"required,year,notfuture"`
	ISBN            string `form:"isbn" json:"isbn" validate:"required,isbndigits"`
	Description     string `form:"description" json:"description" validate:"required,min=2,max=500"`
	Thumbnail       string `form:"thumbnail" json:"thumbnail" validate:"required"`
}

// FieldErrors maps a form field to its validation message.
type FieldErrors map[string]string

var messages = map[string]map[string]string{
	"Title": {
		"required": "Title is required",
		"min":      "Title must be at least 2 characters",
		"max":      "Title must be less than 100 characters",
	},
	"Author": {
		"required": "Author name is required",
		"min":      "Author name must be at least 2 characters",
		"max":      "Author name must be less than 50 characters",
	},
	"PublicationYear": {
		"required":  "Publication year is required",
		"year":      "Publication year must be a valid year",
		"notfuture": "Publication year cannot be in the future",
	},
	"ISBN": {
		"required":   "ISBN is required",
		"isbndigits": "Invalid ISBN format",
	},
	"Description": {
		"required": "Description is required",
		"min":      "Description must be at least 2 characters",
		"max":      "Description must be less than 500 characters",
	},
	"Thumbnail": {
		"required": "Book thumbnail is required",
	},
}

var fieldNames = map[string]string{
	"Title":           FieldTitle,
	"Author":          FieldAuthor,
	"PublicationYear": FieldPublicationYear,
	"ISBN":            FieldISBN,
	"Description":     FieldDescription,
	"Thumbnail":       FieldThumbnail,
}

var validate *validator.Validate

// now is replaced in tests.
var now = time.Now

func init() {
	validate = validator.New()

	mustRegister(validate, "year", validateYear)
	mustRegister(validate, "notfuture", validateNotFuture)
	mustRegister(validate, "isbndigits", validateISBNDigits)
}

// mustRegister panics so a bad rule tag fails at startup.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("bookform: register %q validation: %v", tag, err))
	}
}

func validateYear(fl validator.FieldLevel) bool {
	year, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
	return err == nil && year >= minPublicationYear
}

func validateNotFuture(fl validator.FieldLevel) bool {
	year, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
	return err == nil && year <= now().Year()
}

func validateISBNDigits(fl validator.FieldLevel) bool {
	return ValidISBN(fl.Field().String())
}

// ValidISBN reports whether s consists only of digits and hyphens and
// contains exactly 10 or 13 digits.
func ValidISBN(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '-':
		default:
			return false
		}
	}
	return digits == 10 || digits == 13
}

// Validate checks the values against the form rules. It returns nil when the
// values are valid. Only the first failing rule of each field is reported.
func Validate(v Values) FieldErrors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{"": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.StructField()]
		msg, ok := messages[fe.StructField()][fe.Tag()]
		if !ok {
			msg = name + " is invalid"
		}
		out[name] = msg
	}
	return out
}
