package config

import (
	"os"
	"strings"
)

func getEnv(key string) string {
	return os.Getenv(key)
}

// parseBool reads true/false, 1/0, yes/no and on/off in any case. Anything
// else yields def.
func parseBool(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

// providerEnvSettings gathers the non-empty DDNSWEAVER_PROVIDER_* variables,
// keyed by what follows the prefix. TYPE and NAME select the provider and are
// not settings. FOO_FILE keys are passed on as paths: each provider decides
// whether such a key names a secret (TOKEN_FILE) or a file it reads itself
// (TSIG_KEY_FILE, CREDENTIALS_FILE).
func providerEnvSettings() map[string]string {
	const prefix = EnvPrefix + "PROVIDER_"

	settings := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		key, ok := strings.CutPrefix(name, prefix)
		if !ok || value == "" {
			continue
		}
		switch key {
		case "", "TYPE", "NAME":
			continue
		}
		settings[key] = value
	}
	return settings
}
