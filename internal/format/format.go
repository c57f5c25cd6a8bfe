package format

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var markdownV2Special = []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

// EscapeMarkdownV2 escapes text for Telegram's MarkdownV2 parse mode.
func EscapeMarkdownV2(text string) string {
	for _, char := range markdownV2Special {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// Price renders a USD price with thousands separators. Small prices keep
// more decimals so sub-cent coins stay readable.
func Price(price float64) string {
	decimals := 6
	abs := math.Abs(price)
	switch {
	case abs > 1.2:
		decimals = 2
	case abs != 0 && abs < 0.00001:
		decimals = 8
	}
	return printer.Sprintf("%.*f", decimals, price)
}

// USD is Price with a dollar sign.
func USD(price float64) string {
	if price < 0 {
		return "-$" + Price(-price)
	}
	return "$" + Price(price)
}

// Percent renders a signed percentage with two decimals.
func Percent(pct float64) string {
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return sign + printer.Sprintf("%.2f", pct) + "%"
}

// Compact renders large figures such as market caps as 1.2B.
func Compact(v float64) string {
	if math.Abs(v) < 1000 {
		return printer.Sprintf("%.2f", v)
	}
	s := humanize.SIWithDigits(v, 2, "")
	// SI uses G for billions; markets say B.
	return strings.Replace(strings.TrimSpace(s), "G", "B", 1)
}

// Count renders an integer with thousands separators.
func Count(n int64) string {
	return humanize.Comma(n)
}

// Ago renders t relative to now, e.g. "3 minutes ago".
func Ago(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
