package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModerationModeValid(t *testing.T) {
	for _, mode := range []ModerationMode{ModerationStrict, ModerationModerate, ModerationRelaxed, ModerationRaw} {
		assert.True(t, mode.Valid(), "mode %q", mode)
	}
	assert.False(t, ModerationMode("").Valid())
	assert.False(t, ModerationMode("lenient").Valid())
}

func TestOutputFormatValid(t *testing.T) {
	assert.True(t, FormatJSON.Valid())
	assert.True(t, FormatToon.Valid())
	assert.False(t, OutputFormat("xml").Valid())
}

func TestBrandToneValid(t *testing.T) {
	for _, tone := range []BrandTone{ToneProfessional, ToneCasual, ToneTechnical, ToneFriendly} {
		assert.True(t, tone.Valid(), "tone %q", tone)
	}
	assert.False(t, BrandTone("sarcastic").Valid())
}

func TestEffectiveToxicityThreshold(t *testing.T) {
	assert.Equal(t, DefaultToxicityThreshold, Settings{}.EffectiveToxicityThreshold())
	assert.Equal(t, 0.5, Settings{ToxicityThreshold: 0.5}.EffectiveToxicityThreshold())
}
