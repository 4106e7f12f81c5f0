package integration

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIValidate(t *testing.T) {
	idp := NewFakeIdPServer("alice@example.com")
	defer idp.Close()

	t.Run("valid environment", func(t *testing.T) {
		cmd := exec.Command(authgateBinary, "-validate")
		cmd.Env = gatewayEnv(idp, "alice@example.com")
		output, err := cmd.CombinedOutput()
		t.Logf("validate output: %s", output)

		require.NoError(t, err)
		assert.Contains(t, string(output), "Result: PASS")
	})

	t.Run("missing allow-list", func(t *testing.T) {
		cmd := exec.Command(authgateBinary, "-validate")
		cmd.Env = gatewayEnv(idp, "")
		output, err := cmd.CombinedOutput()

		require.Error(t, err)
		assert.Contains(t, string(output), "ALLOWED_EMAILS")
	})
}

func TestCLIVersion(t *testing.T) {
	output, err := exec.Command(authgateBinary, "-version").CombinedOutput()
	require.NoError(t, err)
	assert.Equal(t, "dev\n", string(output))
}
