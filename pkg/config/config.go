package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CSV splits a comma list, dropping blanks. An empty input yields nil.
func CSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	return envParse(key, def, strconv.Atoi)
}

// EnvDurationDefault accepts Go duration strings ("15m", "30s").
func EnvDurationDefault(key string, def time.Duration) time.Duration {
	return envParse(key, def, time.ParseDuration)
}

// envParse falls back to def when key is unset or does not parse.
func envParse[T any](key string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	out, err := parse(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return out
}
