package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var LocalesFS embed.FS

// Translator resolves message keys for one language.
type Translator struct {
	lang         string
	translations map[string]string
}

func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatting args into it. Unknown keys come back verbatim.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Lang() string { return t.lang }

// Catalog picks a Translator from an Accept-Language header. The first
// language loaded is the fallback.
type Catalog struct {
	matcher     language.Matcher
	translators []*Translator
}

func LoadCatalog(fsys fs.FS, langs ...string) (*Catalog, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("no languages")
	}
	c := &Catalog{}
	tags := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", l, err)
		}
		t, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
		c.translators = append(c.translators, t)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// MustDefault loads the embedded English and Korean catalogs.
func MustDefault() *Catalog {
	c, err := LoadCatalog(LocalesFS, "en", "ko")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) For(acceptLanguage string) *Translator {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.translators[0]
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(c.translators) {
		return c.translators[0]
	}
	return c.translators[idx]
}
