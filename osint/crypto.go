package osint

import (
	"regexp"
	"strings"
)

func mustAnchored(expr string) *regexp.Regexp {
	return regexp.MustCompile(`^` + expr + `$`)
}

var (
	btcLegacyRe = mustAnchored(`[13][a-km-zA-HJ-NP-Z1-9]{25,34}`)
	btcBech32Re = mustAnchored(`bc1[a-z0-9]{39,59}`)
	ethRe       = mustAnchored(`0x[a-fA-F0-9]{40}`)
)

// CryptoAnalysis is the outcome of a format-level address check.
type CryptoAnalysis struct {
	Address       string `json:"address"`
	Valid         bool   `json:"valid"`
	Chain         string `json:"chain,omitempty"`
	Type          string `json:"type,omitempty"`
	FormatDetails string `json:"format_details"`
	Note          string `json:"note,omitempty"`
}

// AnalyzeAddress classifies a cryptocurrency address by format. chain
// restricts detection to "bitcoin" or "ethereum"; "auto" or empty tries all.
// Validation is structural only, no checksum verification.
func AnalyzeAddress(address, chain string) CryptoAnalysis {
	res := CryptoAnalysis{Address: address}

	tryBitcoin := chain == "" || chain == "auto" || chain == "bitcoin"
	tryEthereum := chain == "" || chain == "auto" || chain == "ethereum"

	switch {
	case tryBitcoin && btcLegacyRe.MatchString(address):
		res.Valid = true
		res.Chain = "bitcoin"
		if strings.HasPrefix(address, "1") {
			res.Type = "legacy (P2PKH)"
		} else {
			res.Type = "P2SH"
		}
		res.FormatDetails = "Bitcoin legacy address - older format, widely supported"
	case tryBitcoin && btcBech32Re.MatchString(strings.ToLower(address)):
		res.Valid = true
		res.Chain = "bitcoin"
		res.Type = "segwit (Bech32)"
		res.FormatDetails = "Bitcoin SegWit address - modern, lower fees"
	case tryEthereum && ethRe.MatchString(address):
		res.Valid = true
		res.Chain = "ethereum"
		res.Type = "standard"
		res.FormatDetails = "Ethereum address (ERC-20 token compatible)"
	default:
		res.FormatDetails = "Unknown or invalid cryptocurrency address format"
	}

	if res.Valid {
		res.Note = "Format validated. For production use, implement full checksum validation."
	}
	return res
}
