// Package i18n localizes user-facing CLI messages. English and Spanish
// catalogs are compiled into the binary; unsupported languages fall
// back to English and unknown message IDs come back verbatim.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locale.*.json
var localeFS embed.FS

// Messages resolves message IDs for one configured language.
type Messages struct {
	localizer *goi18n.Localizer
	lang      string
}

// New builds the message catalog for lang ("en", "es", or any BCP 47
// tag; anything without a catalog resolves to English).
func New(lang string) (*Messages, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, name := range []string{"locale.en.json", "locale.es.json"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, name); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return &Messages{
		localizer: goi18n.NewLocalizer(bundle, lang),
		lang:      lang,
	}, nil
}

// Lang returns the configured language tag.
func (m *Messages) Lang() string {
	return m.lang
}

// T resolves a message ID, filling {{.Name}} placeholders from data.
// An ID missing from every catalog is returned verbatim so a stale
// call site never hides the rest of the output.
func (m *Messages) T(id string, data map[string]interface{}) string {
	msg, err := m.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}
