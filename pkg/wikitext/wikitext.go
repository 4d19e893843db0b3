// Package wikitext provides the small slice of wikitext parsing the bot
// needs: finding {{NC}} markers, reading the language list page, and
// stripping category links from file descriptions.
package wikitext

import (
	"fmt"
	"regexp"
	"strings"
)

// Template represents one {{NC|filename|caption}} marker found in a page.
type Template struct {
	// Original is the exact marker text as it appears in the page,
	// kept for string replacement when the page is rewritten.
	Original string
	Filename string
	Caption  string
}

// FileSyntax converts the marker to standard embedded-file syntax.
// If override is non-empty it is used instead of the marker's own
// filename (duplicate handling points at the pre-existing file).
func (t Template) FileSyntax(override string) string {
	name := t.Filename
	if override != "" {
		// Duplicate names come back from the API with underscores.
		name = strings.ReplaceAll(override, "_", " ")
	}
	name = strings.TrimPrefix(name, "File:")
	name = strings.TrimPrefix(name, "file:")
	return fmt.Sprintf("[[File:%s|thumb|%s]]", name, t.Caption)
}

// templateRe matches a non-nested template invocation.
var templateRe = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// categoryRe matches [[Category:...]] links, case-insensitively,
// including links that span lines.
var categoryRe = regexp.MustCompile(`(?is)\[\[category:.*?\]\]`)

// languageLineTemplate is the row template on the language list page.
const languageLineTemplate = "user:mr. ibrahem/import bot/line"

// ExtractTemplates returns all NC markers in the page, in order of
// appearance. Markers without a filename are skipped.
func ExtractTemplates(text string) []Template {
	var out []Template
	for _, raw := range templateRe.FindAllString(text, -1) {
		name, args := splitTemplate(raw)
		if name != "nc" {
			continue
		}
		filename := positionalArg(args, 1)
		if filename == "" {
			continue
		}
		out = append(out, Template{
			Original: raw,
			Filename: filename,
			Caption:  positionalArg(args, 2),
		})
	}
	return out
}

// ParseLanguageList extracts target language codes from the configured
// list page. Rows look like {{User:Mr. Ibrahem/import bot/line|ar}}.
func ParseLanguageList(text string) []string {
	var langs []string
	for _, raw := range templateRe.FindAllString(text, -1) {
		name, args := splitTemplate(raw)
		if !strings.Contains(name, languageLineTemplate) {
			continue
		}
		if code := positionalArg(args, 1); code != "" {
			langs = append(langs, code)
		}
	}
	return langs
}

// RemoveCategories strips every category link from the text. Used on
// file descriptions so source-wiki categories do not leak into the
// target wiki.
func RemoveCategories(text string) string {
	return strings.TrimSpace(categoryRe.ReplaceAllString(text, ""))
}

// splitTemplate breaks {{Name|a|b}} into a normalized name and its
// arguments. Normalization is lowercase with underscores folded to
// spaces, matching how template titles compare on a wiki.
func splitTemplate(raw string) (string, []string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(raw, "{{"), "}}")
	parts := strings.Split(inner, "|")
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	name = strings.ReplaceAll(name, "_", " ")
	return name, parts[1:]
}

// positionalArg returns the n-th positional argument (1-based),
// honoring explicit numbering like |1=value.
func positionalArg(args []string, n int) string {
	pos := 0
	for _, arg := range args {
		if k, v, ok := strings.Cut(arg, "="); ok {
			if strings.TrimSpace(k) == fmt.Sprint(n) {
				return strings.TrimSpace(v)
			}
			// Other named arguments do not advance the positional count.
			continue
		}
		pos++
		if pos == n {
			return strings.TrimSpace(arg)
		}
	}
	return ""
}
