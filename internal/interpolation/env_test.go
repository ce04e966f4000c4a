package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GYMBRIDGE_TEST_HOME", "/opt/panel")

	t.Run("empty input", func(t *testing.T) {
		result, err := ExpandEnvVars("")
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("no variables", func(t *testing.T) {
		result, err := ExpandEnvVars("scripts/echo.py")
		require.NoError(t, err)
		assert.Equal(t, "scripts/echo.py", result)
	})

	t.Run("set variable", func(t *testing.T) {
		result, err := ExpandEnvVars("${GYMBRIDGE_TEST_HOME}/scripts/echo.py")
		require.NoError(t, err)
		assert.Equal(t, "/opt/panel/scripts/echo.py", result)
	})

	t.Run("missing variable with default", func(t *testing.T) {
		result, err := ExpandEnvVars("${GYMBRIDGE_TEST_MISSING:python3}")
		require.NoError(t, err)
		assert.Equal(t, "python3", result)
	})

	t.Run("missing variable with empty default", func(t *testing.T) {
		result, err := ExpandEnvVars("${GYMBRIDGE_TEST_MISSING:}")
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("missing variable without default", func(t *testing.T) {
		_, err := ExpandEnvVars("${GYMBRIDGE_TEST_MISSING}")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GYMBRIDGE_TEST_MISSING")
	})

	t.Run("multiple variables", func(t *testing.T) {
		result, err := ExpandEnvVars("${GYMBRIDGE_TEST_HOME}/${GYMBRIDGE_TEST_SUB:apps}")
		require.NoError(t, err)
		assert.Equal(t, "/opt/panel/apps", result)
	})
}
