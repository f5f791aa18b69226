// Package extract turns free-text trading calls into structured signal
// attributes. Extraction is heuristic: every field is resolved by an ordered
// list of rules where the first match wins, and unresolved fields are left
// empty for the caller to validate or default.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pumpmybags/pmb/pkg/signal"
)

// Data holds the attributes extracted from one message. Empty strings mean
// the field could not be resolved. Prices keep their display form ("85k").
type Data struct {
	Coin       string
	Position   string
	Entry      string
	TakeProfit string
	Targets    map[int]string
	StopLoss   string
	Timeframe  string
	Risk       string
}

// num captures a display price: digits with optional commas, decimals and a
// k/K suffix. Commas are stripped from the capture, the suffix is kept.
const num = `(\d+(?:,\d{3})*(?:\.\d+)?[kK]?)`

var coinWhitelist = []string{
	"BTC", "ETH", "XRP", "LTC", "ADA", "DOT", "DOGE", "SOL", "SHIB", "AVAX",
	"MATIC", "LINK", "BNB", "UNI", "XLM", "ATOM", "ALGO", "FIL", "AAVE",
	"EOS", "XTZ", "NEO", "COMP", "ZEC",
}

var (
	dollarCoinRe    = regexp.MustCompile(`\$([A-Za-z0-9]+)`)
	whitelistCoinRe = regexp.MustCompile(`\b(` + strings.Join(coinWhitelist, "|") + `)\b`)
)

var positionRules = []struct {
	re       *regexp.Regexp
	position string
}{
	{regexp.MustCompile(`\b[Ll]ong\b`), signal.PositionLong},
	{regexp.MustCompile(`\b[Ss]hort\b`), signal.PositionShort},
	{regexp.MustCompile(`\b[Bb]uy\b`), signal.PositionLong},
	{regexp.MustCompile(`\b[Ss]ell\b`), signal.PositionShort},
}

var entryRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:entry|enter at|buy at|sell at|at|price|@)\s*\$?` + num),
	regexp.MustCompile(`(?i)(?:buy|long|short|sell)\b.*?` + num),
	regexp.MustCompile(`(?i)(?:entry|limit|order)\s*:\s*\$?` + num),
}

// tieredTPRe matches numbered take-profit tiers ("tp1 is 90k", "target 2:
// 0.39"). The separator between tier number and price must consume at least
// one character so that "target 85k" is not read as tier 8 at price 5k.
var tieredTPRe = regexp.MustCompile(
	`(?i)(?:\bt\.?\s?p\.?|\btake\s?profit|\btarget)\s*(\d+)(?:\s+|\s*[:=]\s*)(?:(?:is|at)\s+)?\$?` + num)

var generalTPRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:tp|t\.?p\.?|take\s?profit|price\s?target|target|expecting)\b.*?` + num),
	regexp.MustCompile(`(?i)\b(?:to\s+reach|reach)\b.*?` + num),
}

var stopLossRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsl\b\s*(?:is|at|:|=)?\s*\$?` + num),
	regexp.MustCompile(`(?i)\bstop\s?loss\b\s*(?:is|at|:|=)?\s*\$?` + num),
	regexp.MustCompile(`(?i)\bstop\b\s*(?:is|at|:|=)?\s*\$?` + num),
	regexp.MustCompile(`(?i)\bs\.\s?l\.?\s*(?:is|at|:|=)?\s*\$?` + num),
	regexp.MustCompile(`(?i)\bcut\s?loss\b\s*(?:is|at|:|=)?\s*\$?` + num),
	regexp.MustCompile(`(?i)\bexit\s+if\b.*?` + num),
}

// Timeframe categories are checked in order and the first category with any
// hit wins, so "short-term swing" resolves to SHORT, not MID.
var timeframeRules = []struct {
	re        *regexp.Regexp
	timeframe string
}{
	{regexp.MustCompile(`(?i)\b(?:short[-\s]?term|hourly|hours?|short\s?frame|day|daily|intraday|scalp(?:ing)?|quick|1h|4h)\b`), signal.TimeframeShort},
	{regexp.MustCompile(`(?i)\b(?:mid[-\s]?term|mid|week(?:ly)?|medium|swing|1d)\b`), signal.TimeframeMid},
	{regexp.MustCompile(`(?i)\b(?:long[-\s]?term|long\s?frame|month(?:ly)?|year(?:ly)?|hodl|holding|investment)\b`), signal.TimeframeLong},
}

var riskRules = []struct {
	re   *regexp.Regexp
	risk string
}{
	{regexp.MustCompile(`(?i)\b(?:low[-\s]?risk|safe|conservative|small\s?risk|minimal\s?risk)\b`), signal.RiskLow},
	{regexp.MustCompile(`(?i)\b(?:medium[-\s]?risk|moderate|mid[-\s]?risk|average\s?risk|balanced)\b`), signal.RiskMedium},
	{regexp.MustCompile(`(?i)\b(?:high[-\s]?risk|risky|aggressive|speculative|yolo|dangerous)\b`), signal.RiskHigh},
}

// Extract parses a free-text trading call. It is pure and deterministic and
// never fails: fields it cannot resolve stay empty.
func Extract(text string) *Data {
	d := &Data{}
	d.Coin = extractCoin(text)
	d.Position = extractPosition(text)
	d.Entry = extractEntry(text)
	d.Targets, d.TakeProfit = extractTakeProfit(text)
	d.StopLoss = extractStopLoss(text)
	d.Timeframe = extractTimeframe(text, d)
	d.Risk = extractRisk(text, d)
	return d
}

func extractCoin(text string) string {
	if m := dollarCoinRe.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	// No $TICKER: take the leftmost well-known symbol.
	return whitelistCoinRe.FindString(strings.ToUpper(text))
}

func extractPosition(text string) string {
	for _, rule := range positionRules {
		if rule.re.MatchString(text) {
			return rule.position
		}
	}
	return ""
}

func extractEntry(text string) string {
	for _, re := range entryRules {
		if m := re.FindStringSubmatch(text); m != nil {
			return stripCommas(m[1])
		}
	}
	return ""
}

func extractTakeProfit(text string) (map[int]string, string) {
	var targets map[int]string
	for _, m := range tieredTPRe.FindAllStringSubmatch(text, -1) {
		tier, err := strconv.Atoi(m[1])
		if err != nil || tier <= 0 {
			continue
		}
		if targets == nil {
			targets = make(map[int]string)
		}
		if _, ok := targets[tier]; !ok {
			targets[tier] = stripCommas(m[2])
		}
	}
	if _, ok := targets[1]; !ok {
		for _, re := range generalTPRules {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if targets == nil {
				targets = make(map[int]string)
			}
			targets[1] = stripCommas(m[1])
			break
		}
	}
	if len(targets) == 0 {
		return nil, ""
	}
	// Canonical take profit is the lowest tier present, not necessarily 1.
	low := 0
	for tier := range targets {
		if low == 0 || tier < low {
			low = tier
		}
	}
	return targets, targets[low]
}

func extractStopLoss(text string) string {
	for _, re := range stopLossRules {
		if m := re.FindStringSubmatch(text); m != nil {
			return stripCommas(m[1])
		}
	}
	return ""
}

func extractTimeframe(text string, d *Data) string {
	for _, rule := range timeframeRules {
		if rule.re.MatchString(text) {
			return rule.timeframe
		}
	}
	// No keyword hit: derive from the shape of the signal itself.
	if d.Position == signal.PositionShort {
		return signal.TimeframeShort
	}
	entry, okEntry := signal.ParsePrice(d.Entry)
	target, okTarget := signal.ParsePrice(d.TakeProfit)
	if okEntry && okTarget && entry > 0 && target > entry*1.5 {
		return signal.TimeframeLong
	}
	return signal.TimeframeMid
}

func extractRisk(text string, d *Data) string {
	for _, rule := range riskRules {
		if rule.re.MatchString(text) {
			return rule.risk
		}
	}
	// Bare LOW/MEDIUM/HIGH tokens anywhere in the message.
	upper := strings.ToUpper(text)
	for _, risk := range signal.RiskLevels {
		if strings.Contains(upper, risk) {
			return risk
		}
	}
	// Derive from stop-loss distance when one was stated.
	entry, okEntry := signal.ParsePrice(d.Entry)
	stop, okStop := signal.ParsePrice(d.StopLoss)
	if okEntry && okStop && entry > 0 {
		dist := (entry - stop) / entry * 100
		if dist < 0 {
			dist = -dist
		}
		switch {
		case dist <= 3:
			return signal.RiskLow
		case dist <= 10:
			return signal.RiskMedium
		default:
			return signal.RiskHigh
		}
	}
	// Last resort: a default per timeframe.
	if d.Timeframe == signal.TimeframeLong {
		return signal.RiskLow
	}
	return signal.RiskMedium
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

// Parser adapts Extract to the signal.Parser contract. Messages without a
// recognizable coin or take-profit level are rejected.
type Parser struct{}

func (Parser) Parse(text string) (*signal.Signal, error) {
	d := Extract(text)
	if d.Coin == "" {
		return nil, fmt.Errorf("extract: no coin found in %q", text)
	}
	if d.TakeProfit == "" {
		return nil, fmt.Errorf("extract: no take profit found in %q", text)
	}
	return &signal.Signal{
		Text:              text,
		Coin:              d.Coin,
		Position:          d.Position,
		LimitOrder:        d.Entry,
		TakeProfit:        d.TakeProfit,
		TakeProfitTargets: d.Targets,
		StopLoss:          d.StopLoss,
		Timeframe:         d.Timeframe,
		Risk:              d.Risk,
		Status:            signal.StatusPending,
	}, nil
}
