package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCustomizer(t *testing.T) {
	c, err := NewCustomizer(config.AIConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{BaseURL: "https://api.openai.com", APIKey: "k", Model: "gpt-4"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = NewCustomizer(config.AIConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Name())

	_, err = NewCustomizer(config.AIConfig{Provider: "llamafile"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llamafile")
}

func TestMockCustomizerDefaults(t *testing.T) {
	m := NewMockCustomizer()

	cv := models.ParsedCV{FullName: "Jordan Doe", Skills: []string{"go", "sql"}}
	out, err := m.CustomizeCV(context.Background(), cv, "Backend role")
	require.NoError(t, err)
	assert.Equal(t, "Jordan Doe", out.FullName)
	assert.Equal(t, []string{"go"}, out.Highlights)

	letter, err := m.GenerateCoverLetter(context.Background(), cv, "Backend role", "Acme")
	require.NoError(t, err)
	assert.Contains(t, letter, "Acme")
	assert.Contains(t, letter, "Jordan Doe")
}

func TestFailingCustomizer(t *testing.T) {
	boom := errors.New("boom")
	m := NewFailingCustomizer(boom)

	_, err := m.CustomizeCV(context.Background(), models.ParsedCV{}, "x")
	assert.ErrorIs(t, err, boom)
	_, err = m.GenerateCoverLetter(context.Background(), models.ParsedCV{}, "x", "y")
	assert.ErrorIs(t, err, boom)
}

func TestTimeoutCustomizer(t *testing.T) {
	m := NewTimeoutCustomizer()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.CustomizeCV(ctx, models.ParsedCV{}, "x")
	assert.ErrorIs(t, err, ErrInferenceTimeout)
}
