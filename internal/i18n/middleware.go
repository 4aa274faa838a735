package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks the best supported language from Accept-Language, falling
// back to defaultLang, and injects its localizer into the request context.
func Middleware(defaultLang string) func(http.Handler) http.Handler {
	supported := bundle.LanguageTags()
	matcher := language.NewMatcher(supported)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := Negotiate(matcher, supported, r.Header.Get("Accept-Language"), defaultLang)
			w.Header().Set("Content-Language", lang)
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Negotiate returns the supported language best matching an Accept-Language
// header, or fallback when nothing matches.
func Negotiate(matcher language.Matcher, supported []language.Tag, header, fallback string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No || idx >= len(supported) {
		return fallback
	}
	return supported[idx].String()
}
