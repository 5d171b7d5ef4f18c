package handlers

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/4xmen/wasteless/internal/apperr"
)

const userIDKey = "user_id"

var (
	translatorOnce sync.Once
	translator     ut.Translator
)

// setupValidation makes binding errors name JSON fields and registers the
// English messages. Safe to call more than once.
func setupValidation() {
	translatorOnce.Do(func() {
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")

		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		entranslations.RegisterDefaultTranslations(v, translator)
	})
}

// bindError turns a gin binding failure into an InvalidRequest whose message
// lists every failed field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && translator != nil {
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fe.Translate(translator)
		}
		return apperr.InvalidRequest(strings.Join(msgs, ", "))
	}
	return apperr.Wrap(apperr.KindInvalidRequest, "invalid request", err)
}

// respondError renders err as {"error": msg}. Server errors are attached to
// the context for the error logger and never shown to the client.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindServerError {
		c.Error(err)
	}
	c.AbortWithStatusJSON(kind.Status(), gin.H{"error": apperr.PublicMessage(err)})
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(field, value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.InvalidRequest(field + " must be a valid date")
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
