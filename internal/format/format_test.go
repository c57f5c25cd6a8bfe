package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrice(t *testing.T) {
	assert.Equal(t, "51,000.50", Price(51000.5))
	assert.Equal(t, "2.50", Price(2.5))
	assert.Equal(t, "0.123457", Price(0.1234567))
	assert.Equal(t, "0.00000123", Price(0.00000123))
	assert.Equal(t, "$1,234.00", USD(1234))
	assert.Equal(t, "-$5.00", USD(-5))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "+12.00%", Percent(12))
	assert.Equal(t, "-6.00%", Percent(-6))
	assert.Equal(t, "0.00%", Percent(0))
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `BTC\-USD \(\+2\.5%\)`, EscapeMarkdownV2("BTC-USD (+2.5%)"))
}

func TestCompactAndCount(t *testing.T) {
	assert.Equal(t, "999.00", Compact(999))
	assert.Equal(t, "1.5 B", Compact(1.5e9))
	assert.Equal(t, "1,234,567", Count(1234567))
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", Ago(time.Time{}, now))
	assert.Equal(t, "3 minutes ago", Ago(now.Add(-3*time.Minute), now))
}
