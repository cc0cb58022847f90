package translator

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var builtin embed.FS

const (
	LanguageEn = "en"
	LanguagePt = "pt"
)

// Config selects the fallback language and an optional folder whose
// files override or extend the built-in messages
type Config struct {
	DefaultLanguage   string
	TranslationFolder string
}

// Translator resolves message ids against the loaded bundle
type Translator struct {
	bundle *i18n.Bundle
	logger *zap.Logger
}

// New builds the bundle from the embedded locales plus cfg.TranslationFolder
func New(cfg Config, logger *zap.Logger) (*Translator, error) {
	def := language.English
	if cfg.DefaultLanguage != "" {
		tag, err := language.Parse(cfg.DefaultLanguage)
		if err != nil {
			return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
		}
		def = tag
	}

	bundle := i18n.NewBundle(def)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(builtin, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(builtin, f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	t := &Translator{bundle: bundle, logger: logger}
	if cfg.TranslationFolder != "" {
		t.loadFolder(cfg.TranslationFolder)
	}
	return t, nil
}

// loadFolder loads every translation file in folder. Bad files are logged and skipped.
func (t *Translator) loadFolder(folder string) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		t.logger.Error("failed to list translation folder", zap.String("folder", folder), zap.Error(err))
		return
	}

	for _, f := range entries {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".toml") {
			continue
		}
		path := filepath.Join(folder, f.Name())
		if _, err := t.bundle.LoadMessageFile(path); err != nil {
			t.logger.Warn("failed to load translation file", zap.String("file", f.Name()), zap.Error(err))
		}
	}
}

// Localize renders messageID in the best match for langs, which may be
// Accept-Language header values. Unknown ids come back unchanged.
func (t *Translator) Localize(messageID string, langs ...string) string {
	localizer := i18n.NewLocalizer(t.bundle, langs...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		t.logger.Debug("missing translation", zap.String("message_id", messageID), zap.Error(err))
		return messageID
	}
	return msg
}

// Languages lists the languages that have messages loaded
func (t *Translator) Languages() []string {
	tags := t.bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}
