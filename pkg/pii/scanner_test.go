package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanOutput_RedactsHighSeverity(t *testing.T) {
	text, leaks, redacted := ScanOutput("Your SSN is 123-45-6789, card 4111-1111-1111-1111.")

	assert.True(t, redacted)
	assert.Contains(t, text, "[SSN_REDACTED]")
	assert.Contains(t, text, "[CREDIT_CARD_REDACTED]")
	assert.NotContains(t, text, "123-45-6789")
	assert.NotContains(t, text, "4111-1111-1111-1111")

	require.Len(t, leaks, 2)
	for _, l := range leaks {
		assert.Equal(t, SeverityHigh, l.Severity)
	}
}

func TestScanOutput_ReportsMediumWithoutRedacting(t *testing.T) {
	in := "Contact support@example.org or call (555) 123-4567."
	text, leaks, redacted := ScanOutput(in)

	assert.False(t, redacted)
	assert.Equal(t, in, text)

	byType := map[string]Leak{}
	for _, l := range leaks {
		byType[l.Type] = l
	}
	assert.Equal(t, SeverityMedium, byType[TypeEmail].Severity)
	assert.Equal(t, 1, byType[TypeEmail].Count)
	assert.Equal(t, SeverityMedium, byType[TypePhone].Severity)
}

func TestScanOutput_ReportsIPAsLow(t *testing.T) {
	in := "The gateway sits at 10.1.2.3."
	text, leaks, redacted := ScanOutput(in)

	assert.False(t, redacted)
	assert.Equal(t, in, text)
	require.Len(t, leaks, 1)
	assert.Equal(t, TypeIPAddress, leaks[0].Type)
	assert.Equal(t, SeverityLow, leaks[0].Severity)
}

func TestScanOutput_CleanText(t *testing.T) {
	text, leaks, redacted := ScanOutput("Paris is the capital of France.")
	assert.False(t, redacted)
	assert.Empty(t, leaks)
	assert.Equal(t, "Paris is the capital of France.", text)
}

func TestScanOutput_Empty(t *testing.T) {
	text, leaks, redacted := ScanOutput("")
	assert.Empty(t, text)
	assert.Nil(t, leaks)
	assert.False(t, redacted)
}
