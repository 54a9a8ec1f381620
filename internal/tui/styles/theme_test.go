package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTheme(t *testing.T) {
	theme := DefaultTheme()
	require.NotNil(t, theme)

	assert.Equal(t, lipgloss.Color("#7AA2F7"), theme.Primary)
	assert.Equal(t, lipgloss.Color("#9ECE6A"), theme.Success)
	assert.Equal(t, lipgloss.Color("#F7768E"), theme.Danger)

	assert.True(t, theme.TitleStyle.GetBold(), "titles are bold")
	assert.True(t, theme.StatusFailed.GetBold(), "failures are bold")
	assert.False(t, theme.StatusPending.GetBold())
}
