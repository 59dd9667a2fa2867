package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"
)

// MaxContentLength is the post length bound in UTF-16 code units, the
// unit browsers count in. An emoji outside the BMP counts as 2.
const MaxContentLength = 280

type Code string

const (
	EmptyContent Code = "EmptyContent"
	TooLong      Code = "TooLong"
	NotEmojiOnly Code = "NotEmojiOnly"
)

// Error is a field-level rejection of user input.
type Error struct {
	Field   string `json:"field"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Content is post text that passed Validate. The zero value is not valid.
type Content struct {
	value string
}

func (c Content) String() string { return c.value }

// Valid reports whether c was produced by Validate.
func (c Content) Valid() bool { return c.value != "" }

type submission struct {
	Content string `validate:"nonblank,maxlen=280,emojionly"`
}

var validate *validator.Validate

var messages = map[string]struct {
	code Code
	msg  string
}{
	"nonblank":  {EmptyContent, "Type some emojis"},
	"maxlen":    {TooLong, fmt.Sprintf("Posts are limited to %d characters", MaxContentLength)},
	"emojionly": {NotEmojiOnly, "Only emojis are allowed"},
}

func init() {
	validate = validator.New()
	mustRegister("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister("maxlen", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return Length(fl.Field().String()) <= limit
	})
	mustRegister("emojionly", func(fl validator.FieldLevel) bool {
		return IsEmojiOnly(fl.Field().String())
	})
}

// Length counts s in UTF-16 code units.
func Length(s string) int {
	n := 0
	for _, r := range s {
		n += len(utf16.Encode([]rune{r}))
	}
	return n
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic("validation: register " + tag + ": " + err.Error())
	}
}

// Validate checks raw post content. On success the string is returned
// unchanged inside Content; on failure the error is an *Error.
func Validate(raw string) (Content, error) {
	err := validate.Struct(submission{Content: raw})
	if err == nil {
		return Content{value: raw}, nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		if m, ok := messages[fieldErrs[0].Tag()]; ok {
			return Content{}, &Error{Field: "content", Code: m.code, Message: m.msg}
		}
	}
	return Content{}, &Error{Field: "content", Code: NotEmojiOnly, Message: err.Error()}
}
