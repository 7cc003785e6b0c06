package osint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/umbra-intel/shrike/search"
	"github.com/umbra-intel/shrike/store"
	"github.com/umbra-intel/shrike/tool"
)

// OriginBuiltin marks tools registered by this package.
const OriginBuiltin = "builtin"

// Searcher runs dark-web search fan-out.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults, workers int) ([]search.Result, error)
	EngineCount() int
}

// Fetcher retrieves pages through the Tor session.
type Fetcher interface {
	Fetch(ctx context.Context, req search.FetchRequest) (*search.FetchResponse, error)
	Scrape(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators the built-in tools run against. Search and
// Fetch are required for the network tools; Repo may be nil, in which case
// onion_reputation reports every domain as unknown.
type Deps struct {
	Search Searcher
	Fetch  Fetcher
	Repo   store.Repository
}

// Tools builds the six built-in tools. Register them with a tool.Registry
// before connecting external providers so local names win collisions.
func Tools(deps Deps) []*tool.Tool {
	return []*tool.Tool{
		darkWebSearchTool(deps.Search),
		scrapeOnionSiteTool(deps.Fetch),
		extractEntitiesTool(),
		torWebFetchTool(deps.Fetch),
		cryptoAnalysisTool(),
		onionReputationTool(deps.Repo),
	}
}

func darkWebSearchTool(searcher Searcher) *tool.Tool {
	return &tool.Tool{
		Name:        "dark_web_search",
		Description: "Search dark web search engines simultaneously via Tor. Returns deduplicated .onion links with titles. Use this for initial reconnaissance on any dark web topic or threat intelligence gathering.",
		Origin:      OriginBuiltin,
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "Search query for dark web engines", Required: true},
			{Name: "max_results", Type: "integer", Description: "Maximum results to return (default: 50)", Default: 50},
			{Name: "threads", Type: "integer", Description: "Concurrent workers for searching (default: 5)", Default: 5},
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if searcher == nil {
				return nil, errors.New("search client not configured")
			}
			query := stringArg(args, "query")
			maxResults := intArg(args, "max_results", 50)
			threads := intArg(args, "threads", 5)

			results, err := searcher.Search(ctx, query, maxResults, threads)
			if err != nil {
				return nil, fmt.Errorf("dark web search: %w", err)
			}

			items := make([]map[string]any, len(results))
			for i, r := range results {
				items[i] = map[string]any{"link": r.Link, "title": r.Title}
			}
			return map[string]any{
				"query":           query,
				"results":         items,
				"count":           len(items),
				"engines_queried": searcher.EngineCount(),
			}, nil
		},
	}
}

func scrapeOnionSiteTool(fetcher Fetcher) *tool.Tool {
	return &tool.Tool{
		Name:        "scrape_onion_site",
		Description: "Scrape content from a specific .onion URL via Tor. Returns page text content. Use when you need to examine a specific dark web page or extract content from a known .onion address.",
		Origin:      OriginBuiltin,
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Description: "The .onion URL to scrape (must include .onion domain)", Required: true},
			{Name: "max_chars", Type: "integer", Description: "Maximum characters to return (default: 2000)", Default: 2000},
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if fetcher == nil {
				return nil, errors.New("tor session not configured")
			}
			url := stringArg(args, "url")
			if !strings.Contains(url, ".onion") {
				return nil, errors.New("URL must be a .onion domain")
			}
			maxChars := intArg(args, "max_chars", 2000)

			text, err := fetcher.Scrape(ctx, url)
			if err != nil {
				return nil, fmt.Errorf("scrape %s: %w", url, err)
			}

			text, truncated := truncateText(text, maxChars)
			return map[string]any{
				"url":       url,
				"content":   text,
				"length":    len(text),
				"truncated": truncated,
			}, nil
		},
	}
}

func extractEntitiesTool() *tool.Tool {
	return &tool.Tool{
		Name:        "extract_entities",
		Description: "Extract OSINT entities and indicators of compromise (IOCs) from text. Extracts: onion domains, email addresses, Bitcoin/Ethereum addresses, IP addresses, CVEs, MD5/SHA256 hashes. Use for analyzing content and identifying key artifacts.",
		Origin:      OriginBuiltin,
		Parameters: []tool.Parameter{
			{Name: "text", Type: "string", Description: "Text to analyze for entities and IOCs", Required: true},
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			entities := ExtractEntities(stringArg(args, "text"))
			total, types, summary := SummarizeEntities(entities)

			byType := make(map[string]any, len(entities))
			for kind, values := range entities {
				byType[kind] = values
			}
			return map[string]any{
				"entities":    byType,
				"total_count": total,
				"types_found": types,
				"summary":     summary,
			}, nil
		},
	}
}

func torWebFetchTool(fetcher Fetcher) *tool.Tool {
	return &tool.Tool{
		Name:        "tor_web_fetch",
		Description: "Fetch any web resource (clearnet or .onion) via Tor proxy. Supports both dark web and regular web URLs. Use for retrieving specific pages or checking URL accessibility through Tor.",
		Origin:      OriginBuiltin,
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Description: "URL to fetch (supports .onion and clearnet URLs)", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method (default: GET)", Enum: []string{"GET", "POST"}, Default: "GET"},
			{Name: "timeout", Type: "integer", Description: "Request timeout in seconds (default: 45)", Default: 45},
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if fetcher == nil {
				return nil, errors.New("tor session not configured")
			}
			url := stringArg(args, "url")
			method := strings.ToUpper(stringArg(args, "method"))
			if method != "GET" && method != "POST" {
				return nil, fmt.Errorf("unsupported HTTP method: %s", method)
			}
			timeout := time.Duration(intArg(args, "timeout", 45)) * time.Second

			resp, err := fetcher.Fetch(ctx, search.FetchRequest{
				URL:     url,
				Method:  method,
				Timeout: timeout,
			})
			if err != nil {
				return nil, err
			}

			content, truncated := truncateText(resp.Body, 5000)
			return map[string]any{
				"url":            url,
				"status_code":    resp.Status,
				"content":        content,
				"content_type":   resp.ContentType,
				"content_length": len(resp.Body),
				"truncated":      truncated,
				"via_tor":        strings.Contains(url, ".onion"),
			}, nil
		},
	}
}

func cryptoAnalysisTool() *tool.Tool {
	return &tool.Tool{
		Name:        "crypto_analysis",
		Description: "Analyze and validate cryptocurrency addresses. Supports Bitcoin (legacy, SegWit) and Ethereum addresses. Returns format validation and blockchain identification. Use for verifying crypto addresses found during investigations.",
		Origin:      OriginBuiltin,
		Parameters: []tool.Parameter{
			{Name: "address", Type: "string", Description: "Cryptocurrency address to analyze", Required: true},
			{Name: "chain", Type: "string", Description: "Blockchain type (default: auto-detect)", Enum: []string{"auto", "bitcoin", "ethereum"}, Default: "auto"},
		},
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			analysis := AnalyzeAddress(stringArg(args, "address"), stringArg(args, "chain"))

			payload := map[string]any{
				"address":        analysis.Address,
				"valid":          analysis.Valid,
				"format_details": analysis.FormatDetails,
			}
			if analysis.Valid {
				payload["chain"] = analysis.Chain
				payload["type"] = analysis.Type
				payload["note"] = analysis.Note
			}
			return payload, nil
		},
	}
}

func onionReputationTool(repo store.Repository) *tool.Tool {
	return &tool.Tool{
		Name:        "onion_reputation",
		Description: "Check if an onion domain appears in the historical investigation database. Returns frequency, first seen date, and related investigations. Use for assessing domain reputation and finding related past investigations.",
		Origin:      OriginBuiltin,
		Parameters: []tool.Parameter{
			{Name: "domain", Type: "string", Description: ".onion domain to check (with or without protocol)", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			domain := normalizeDomain(stringArg(args, "domain"))
			if repo == nil {
				return map[string]any{
					"domain":  domain,
					"known":   false,
					"message": "Investigation database not configured",
				}, nil
			}

			entity, err := repo.LookupEntity(ctx, "onion_domain", domain)
			if err != nil {
				return nil, fmt.Errorf("reputation lookup: %w", err)
			}
			if entity == nil {
				return map[string]any{
					"domain":  domain,
					"known":   false,
					"message": "Domain not found in investigation database",
				}, nil
			}

			refs, err := repo.RelatedInvestigations(ctx, domain, 10)
			if err != nil {
				return nil, fmt.Errorf("related investigations: %w", err)
			}
			related := make([]map[string]any, len(refs))
			for i, ref := range refs {
				related[i] = map[string]any{
					"query":        ref.Query,
					"timestamp":    ref.Timestamp.Format(time.RFC3339),
					"summary_file": ref.SummaryFile,
				}
			}

			return map[string]any{
				"domain":                 domain,
				"known":                  true,
				"entity_type":            entity.Type,
				"first_seen":             entity.FirstSeen.Format(time.RFC3339),
				"frequency":              entity.Frequency,
				"appearances":            len(related),
				"related_investigations": related,
				"reputation_score":       reputationScore(entity.Frequency),
				"summary": fmt.Sprintf("Domain appeared in %d investigations, first seen %s",
					entity.Frequency, entity.FirstSeen.Format("2006-01-02")),
			}, nil
		},
	}
}

func reputationScore(frequency int) string {
	switch {
	case frequency > 5:
		return "high"
	case frequency > 2:
		return "medium"
	default:
		return "low"
	}
}

func normalizeDomain(domain string) string {
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimRight(domain, "/")
	if i := strings.IndexByte(domain, '/'); i >= 0 {
		domain = domain[:i]
	}
	return domain
}

// truncateText caps s at max bytes, backing off so a multi-byte rune is
// never split.
func truncateText(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "... (truncated)", true
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg tolerates the float64 values JSON decoding produces.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
