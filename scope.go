package gloss

import "strings"

// ScopeResolver normalizes free-form (language, version) pairs into canonical scopes.
// Implementations must be total (never fail) and idempotent.
type ScopeResolver interface {
	Resolve(rawLanguage, rawVersion string) Scope
}

// CanonicalScopes is the fixed resolver table shared by every client of the
// cloud store.
type CanonicalScopes struct{}

// Resolve implements ScopeResolver.
func (CanonicalScopes) Resolve(rawLanguage, rawVersion string) Scope {
	return ResolveScope(rawLanguage, rawVersion)
}

// ResolveScope maps any (language, version) pair onto one of (id,TB1),
// (id,TB2) or (en,EN1). Language is "en" only when the input equals "en"
// case-insensitively; for "id" the version "TB2" is kept verbatim and
// everything else becomes "TB1".
func ResolveScope(rawLanguage, rawVersion string) Scope {
	if strings.EqualFold(strings.TrimSpace(rawLanguage), string(LanguageEnglish)) {
		return Scope{Language: LanguageEnglish, Version: VersionEN1}
	}
	if strings.TrimSpace(rawVersion) == VersionTB2 {
		return Scope{Language: LanguageIndonesian, Version: VersionTB2}
	}
	return Scope{Language: LanguageIndonesian, Version: VersionTB1}
}

// CanonicalizeScope re-resolves a scope read from storage or the cloud.
func CanonicalizeScope(s Scope) Scope {
	return ResolveScope(string(s.Language), s.Version)
}

// knownVersionSpellings lists every version code clients have written per
// language, including spellings from before version codes were normalized.
var knownVersionSpellings = map[Language][]string{
	LanguageIndonesian: {VersionTB1, VersionTB2, "TB", "tb1", "tb"},
	LanguageEnglish:    {VersionEN1, "EN", "en1", "en"},
}

// VersionSpellings returns every known raw version code that resolves to the
// canonical version of s. The canonical spelling comes first.
func VersionSpellings(s Scope) []string {
	canonical := CanonicalizeScope(s)
	out := []string{canonical.Version}
	for _, raw := range knownVersionSpellings[canonical.Language] {
		if raw == canonical.Version {
			continue
		}
		if ResolveScope(string(canonical.Language), raw) == canonical {
			out = append(out, raw)
		}
	}
	return out
}
