package executor

import (
	"os"
	"path/filepath"
	"strings"
)

const fallbackPath = "/usr/local/bin:/usr/bin:/bin"

// BuildEnv assembles a child environment: allowlisted variables from the parent,
// then extras, then PATH with managerBinDir in front.
func BuildEnv(allowed []string, managerBinDir string, extras []string) []string {
	env := make([]string, 0, len(allowed)+len(extras)+1)

	for _, key := range allowed {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}

	for _, kv := range extras {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env = setEnvKey(env, key, val)
	}

	path := getEnvKey(env, "PATH")
	if path == "" {
		path = fallbackPath
	}
	if managerBinDir != "" && !pathContains(path, managerBinDir) {
		path = managerBinDir + string(os.PathListSeparator) + path
	}
	return setEnvKey(env, "PATH", path)
}

func getEnvKey(env []string, key string) string {
	prefix := key + "="
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			return strings.TrimPrefix(e, prefix)
		}
	}
	return ""
}

// setEnvKey sets or replaces an environment variable.
func setEnvKey(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func pathContains(pathList, dir string) bool {
	clean := filepath.Clean(dir)
	for _, p := range filepath.SplitList(pathList) {
		if filepath.Clean(p) == clean {
			return true
		}
	}
	return false
}
