// Package osint provides the built-in investigation tools: dark-web search,
// onion scraping, Tor fetch, entity extraction, crypto address analysis, and
// onion reputation lookups backed by the investigation store.
package osint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var entityPatterns = []struct {
	kind      string
	re        *regexp.Regexp
	lowercase bool
}{
	{kind: "onion_domain", re: regexp.MustCompile(`[a-z2-7]{16,56}\.onion`), lowercase: true},
	{kind: "email", re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{kind: "bitcoin", re: regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)},
	{kind: "bitcoin", re: regexp.MustCompile(`\bbc1[a-z0-9]{39,59}\b`)},
	{kind: "ethereum", re: regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)},
	{kind: "ipv4", re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{kind: "cve", re: regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)},
	{kind: "hash_md5", re: regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)},
	{kind: "hash_sha256", re: regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)},
}

// ExtractEntities pulls indicators of compromise out of free text, grouped
// by type. Types with no matches are omitted; values within a type are
// deduplicated and sorted.
func ExtractEntities(text string) map[string][]string {
	found := make(map[string]map[string]struct{})
	lower := strings.ToLower(text)

	for _, p := range entityPatterns {
		input := text
		if p.lowercase {
			input = lower
		}
		for _, m := range p.re.FindAllString(input, -1) {
			if found[p.kind] == nil {
				found[p.kind] = make(map[string]struct{})
			}
			found[p.kind][m] = struct{}{}
		}
	}

	out := make(map[string][]string, len(found))
	for kind, set := range found {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
		out[kind] = values
	}
	return out
}

// SummarizeEntities renders the one-line summary attached to extraction
// results.
func SummarizeEntities(entities map[string][]string) (total int, types []string, summary string) {
	for kind, values := range entities {
		total += len(values)
		types = append(types, kind)
	}
	sort.Strings(types)
	summary = fmt.Sprintf("Found %d entities across %d types", total, len(types))
	return total, types, summary
}
