package executor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEnv(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	t.Setenv("HOME", "/home/dev")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "nope")

	env := BuildEnv([]string{"PATH", "HOME"}, "/home/dev/.foundry/bin", []string{"FOUNDRY_PROFILE=ci", "garbage", "=x"})

	assert.Equal(t, "/home/dev/.foundry/bin"+string(os.PathListSeparator)+"/usr/bin:/bin", getEnvKey(env, "PATH"))
	assert.Equal(t, "/home/dev", getEnvKey(env, "HOME"))
	assert.Equal(t, "ci", getEnvKey(env, "FOUNDRY_PROFILE"))
	assert.Empty(t, getEnvKey(env, "AWS_SECRET_ACCESS_KEY"))
	assert.Len(t, env, 3)
}

func TestBuildEnv_MinimalParent(t *testing.T) {
	env := BuildEnv(nil, "/opt/foundry/bin", nil)
	assert.Equal(t, []string{"PATH=/opt/foundry/bin:" + fallbackPath}, env)
}

func TestBuildEnv_ManagerDirNotDuplicated(t *testing.T) {
	t.Setenv("PATH", "/opt/foundry/bin:/usr/bin")
	env := BuildEnv([]string{"PATH"}, "/opt/foundry/bin/", nil)
	assert.Equal(t, "/opt/foundry/bin:/usr/bin", getEnvKey(env, "PATH"))
}
