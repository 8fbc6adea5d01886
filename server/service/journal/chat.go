package journal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/hrygo/soulmap/server/internal/errors"
)

// Chat roles.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// ChatMessage is one turn of the conversation behind an entry.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user ai"`
	Content string `json:"content" validate:"required,notblank"`
}

var rolePrefixes = map[string]string{
	RoleUser: "User",
	RoleAI:   "AI",
}

// FlattenChat turns a chat into the entry text. A single message is used
// verbatim; longer chats are role-prefixed turns separated by blank lines.
func FlattenChat(chat []ChatMessage) string {
	if len(chat) == 1 {
		return chat[0].Content
	}
	turns := make([]string, 0, len(chat))
	for _, msg := range chat {
		turns = append(turns, fmt.Sprintf("%s: %s", rolePrefixes[msg.Role], msg.Content))
	}
	return strings.Join(turns, "\n\n")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

func (s *Service) validateFinish(req *FinishRequest) error {
	if req == nil {
		return apperrors.InvalidArgument("request body is required")
	}
	return validationError(s.validate.Struct(req))
}

// validationError reports the first failed field in client terms.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidArgument, "invalid request")
	}
	fe := fieldErrors[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	var msg string
	switch fe.Tag() {
	case "required", "notblank":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return apperrors.InvalidArgument(msg).WithContext("field", field)
}
