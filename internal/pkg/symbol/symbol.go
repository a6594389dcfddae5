// Package symbol normalizes trading pair notation. Upstream producers send
// "BTC/USDT", "btc-usdt" or "BTCUSDT"; the venue wants the compact form.
package symbol

import "strings"

type Symbol struct {
	Base  string
	Quote string
}

// Venue returns the compact exchange form, e.g. BTCUSDT.
func (s Symbol) Venue() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// quoteCurrencies ordered longest-first so BUSD wins over USD-style
// suffix ambiguity.
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{Base: parts[0], Quote: parts[1]}
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize returns the venue form of any accepted notation, or "" when
// the input cannot be parsed as a pair.
func Normalize(s string) string {
	return Parse(s).Venue()
}

// NormalizeList dedupes and normalizes a configured symbol list, keeping
// unparseable entries as-is in upper case.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			norm = strings.ToUpper(strings.TrimSpace(s))
			if norm == "" {
				continue
			}
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
