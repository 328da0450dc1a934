package i18n

import (
	"embed"
	"encoding/json"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Translator resolves message IDs to localized text. Arabic is the default.
type Translator struct {
	bundle *goi18n.Bundle
}

func New() (*Translator, error) {
	bundle := goi18n.NewBundle(language.Arabic)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, f := range []string{"locales/active.ar.json", "locales/active.en.json"} {
		if _, err := bundle.LoadMessageFileFS(locales, f); err != nil {
			return nil, err
		}
	}
	return &Translator{bundle: bundle}, nil
}

// T localizes id for the given Accept-Language value. Unknown IDs come back verbatim.
func (t *Translator) T(acceptLanguage, id string, data map[string]any) string {
	loc := goi18n.NewLocalizer(t.bundle, acceptLanguage)
	msg, err := loc.Localize(&goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return msg
}
