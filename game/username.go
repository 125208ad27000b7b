package game

import (
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/mapleleafu/typerace/protocol"
)

var validate = validator.New()

// ValidateUsername accepts 1 to 15 ASCII letters or digits.
func ValidateUsername(username string) error {
	if err := validate.Var(username, "required,alphanum"); err != nil {
		return ErrInvalidUsername
	}
	if utf8.RuneCountInString(username) > protocol.MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
