// Package validation holds input rules shared by the client and the server.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTargetLength максимальная длина пути ресурса в байтах
const MaxTargetLength = 512

// UserIDPattern определяет допустимый формат идентификатора владельца:
// латинские буквы, цифры, '_', '-', '.', '@', длина 1-64
var UserIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,64}$`)

// ValidateTarget проверяет логический путь ресурса.
// Путь относительный, сегменты разделены '/', пустые сегменты и '..' запрещены.
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return errors.New("target must not be empty")
	}
	if len(target) > MaxTargetLength {
		return fmt.Errorf("target must be at most %d bytes", MaxTargetLength)
	}
	if !utf8.ValidString(target) {
		return errors.New("target must be valid UTF-8")
	}
	if strings.HasPrefix(target, "/") {
		return errors.New("target must be relative")
	}

	for _, r := range target {
		if unicode.IsControl(r) {
			return errors.New("target must not contain control characters")
		}
	}

	for segment := range strings.SplitSeq(target, "/") {
		switch segment {
		case "":
			return errors.New("target must not contain empty segments")
		case ".", "..":
			return fmt.Errorf("target must not contain %q segments", segment)
		}
	}
	return nil
}

// ValidateUserID проверяет идентификатор владельца мутаций
func ValidateUserID(userID string) error {
	if userID == "" {
		return errors.New("user id cannot be empty")
	}
	if !UserIDPattern.MatchString(userID) {
		return fmt.Errorf("user id %q can only contain letters, numbers and _ . @ - (at most 64)", userID)
	}
	return nil
}
