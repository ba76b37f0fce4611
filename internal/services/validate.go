package services

import (
	"net/mail"
	"strings"
)

const (
	maxNameLength     = 255
	minPasswordLength = 8
)

const (
	msgNameRequired      = "The name field is required."
	msgNameTooLong       = "The name field must not be greater than 255 characters."
	msgEmailRequired     = "The email field is required."
	msgEmailInvalid      = "The email field must be a valid email address."
	msgEmailTaken        = "The email has already been taken."
	msgPasswordRequired  = "The password field is required."
	msgPasswordTooShort  = "The password field must be at least 8 characters."
	msgPasswordMismatch  = "The password field confirmation does not match."
	msgRoleInvalid       = "The selected role is invalid."
	msgTokenRequired     = "The token field is required."
	msgBadCredentials    = "The provided credentials are incorrect."
	msgResetTokenInvalid = "This password reset token is invalid."
	msgResetUserMissing  = "We can't find a user with that email address."
)

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms like `John <john@example.com>`.
	return addr.Address == email
}

func checkName(errs *ValidationError, name string, required bool) {
	if name == "" {
		if required {
			errs.add("name", msgNameRequired)
		}
		return
	}
	if len(name) > maxNameLength {
		errs.add("name", msgNameTooLong)
	}
}

func checkEmail(errs *ValidationError, email string, required bool) {
	if email == "" {
		if required {
			errs.add("email", msgEmailRequired)
		}
		return
	}
	if !validEmail(email) {
		errs.add("email", msgEmailInvalid)
	}
}

func checkPassword(errs *ValidationError, password, confirmation string, required bool) {
	if password == "" {
		if required {
			errs.add("password", msgPasswordRequired)
		}
		return
	}
	if len(password) < minPasswordLength {
		errs.add("password", msgPasswordTooShort)
	}
	if password != confirmation {
		errs.add("password", msgPasswordMismatch)
	}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
