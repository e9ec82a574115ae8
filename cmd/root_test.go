// cmd/root_test.go
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)

	out, err := executeCommand(t, NewRootCommand(), "--version")
	require.NoError(t, err)
	assert.Equal(t, "domscope version "+Version+"\n", out)
}

func TestRootCmd_NoArgs(t *testing.T) {
	resetForTest(t)

	out, err := executeCommand(t, NewRootCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "domscope captures interactive DOM snapshots")
	assert.Contains(t, out, "snapshot")
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)

	out, err := executeCommand(t, NewRootCommand(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "domscope "+Version)
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	resetForTest(t)
	f := &fakeSession{raw: sampleRaw}

	_, err := executeCommand(t, newRootCommand(f.factory()), "snapshot", "--config", "does-not-exist.yaml", "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
	assert.Zero(t, f.launches)
}

func TestRootCmd_InvalidConfigValues(t *testing.T) {
	resetForTest(t)
	f := &fakeSession{raw: sampleRaw}
	cfgPath := writeFile(t, "config.yaml", "dom:\n  max_tree_depth: -4\n")

	_, err := executeCommand(t, newRootCommand(f.factory()), "snapshot", "--config", cfgPath, "example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tree_depth")
	assert.Zero(t, f.launches)
}

func TestInitializeConfig(t *testing.T) {
	t.Run("DefaultFileIsOptional", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.NoError(t, initializeConfig(viper.New(), ""))
	})

	t.Run("ReadsDefaultFile", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("browser:\n  user_agent: probe\n"), 0o644))

		v := viper.New()
		require.NoError(t, initializeConfig(v, ""))
		assert.Equal(t, "probe", v.GetString("browser.user_agent"))
	})

	t.Run("EnvironmentPrefix", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("DOMSCOPE_BROWSER_USER_AGENT", "from-env")
		v := viper.New()
		v.SetDefault("browser.user_agent", "")
		require.NoError(t, initializeConfig(v, ""))
		assert.Equal(t, "from-env", v.GetString("browser.user_agent"))
	})
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.Error(t, err)
}
