// Package i18n loads the localized message catalogs used by the session gate
// and the gallery views.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

const (
	// BaseLocale is the fallback locale for every lookup.
	BaseLocale = "ko-KR"
)

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds every loaded locale and resolves printers for them.
type Bundle struct {
	messages map[string]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
	builder  *catalog.Builder
}

var (
	defaultOnce   sync.Once
	defaultBundle *Bundle
)

// Default returns the bundle built from the embedded catalogs.
func Default() *Bundle {
	defaultOnce.Do(func() {
		b, err := LoadFromFS(embeddedFS)
		if err != nil {
			panic(fmt.Sprintf("i18n: embedded catalogs: %v", err))
		}
		defaultBundle = b
	})
	return defaultBundle
}

// LoadFromFS reads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{messages: map[string]map[string]string{}}

	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}

		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}

		if err := b.addFile(p, file); err != nil {
			return nil, err
		}
	}

	if _, ok := b.messages[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	if err := b.build(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bundle) addFile(p string, file catalogFile) error {
	localeFromPath := path.Base(path.Dir(p))

	locale := strings.TrimSpace(file.Locale)
	if locale == "" {
		return fmt.Errorf("catalog %s: locale is required", p)
	}
	if locale != localeFromPath {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", p, locale, localeFromPath)
	}
	if file.Messages == nil {
		return fmt.Errorf("catalog %s: messages map is required", p)
	}

	msgs, ok := b.messages[locale]
	if !ok {
		msgs = map[string]string{}
		b.messages[locale] = msgs
	}

	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", p)
		}
		if _, exists := msgs[key]; exists {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", p, key, locale)
		}
		msgs[key] = value
	}

	return nil
}

func (b *Bundle) build() error {
	base := language.MustParse(BaseLocale)
	b.builder = catalog.NewBuilder(catalog.Fallback(base))

	// base locale goes first so the matcher falls back to it
	b.tags = []language.Tag{base}
	for _, locale := range b.Locales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		if locale != BaseLocale {
			b.tags = append(b.tags, tag)
		}
		for key, value := range b.messages[locale] {
			if err := b.builder.SetString(tag, key, value); err != nil {
				return fmt.Errorf("register %s/%s: %w", locale, key, err)
			}
		}
	}

	b.matcher = language.NewMatcher(b.tags)
	return nil
}

// Locales returns the loaded locale identifiers, sorted.
func (b *Bundle) Locales() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.messages))
	for locale := range b.messages {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Match returns the best supported locale for an accept-language style value.
func (b *Bundle) Match(preferred ...string) string {
	if b == nil || len(b.tags) == 0 {
		return BaseLocale
	}

	var wanted []language.Tag
	for _, p := range preferred {
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		wanted = append(wanted, tags...)
	}

	if len(wanted) == 0 {
		return BaseLocale
	}

	_, idx, conf := b.matcher.Match(wanted...)
	if conf == language.No {
		return BaseLocale
	}
	return b.tags[idx].String()
}

// Has reports whether key is defined for locale or the base locale.
func (b *Bundle) Has(locale, key string) bool {
	if b == nil {
		return false
	}
	if _, ok := b.messages[locale][key]; ok {
		return true
	}
	_, ok := b.messages[BaseLocale][key]
	return ok
}

// Printer returns a formatter bound to the best match for locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	tag := language.MustParse(b.Match(locale))
	return message.NewPrinter(tag, message.Catalog(b.builder))
}

// Sprintf formats the message stored under key for locale.
func (b *Bundle) Sprintf(locale, key string, args ...any) string {
	return b.Printer(locale).Sprintf(key, args...)
}
