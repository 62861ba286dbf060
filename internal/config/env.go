package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

func String(name string, def string) string {
	if v := lookup(name); v != "" {
		return v
	}
	return def
}

func Int(name string, def int) (int, error) {
	v := lookup(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	return i, nil
}

func Bool(name string, def bool) (bool, error) {
	v := lookup(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	return b, nil
}

func Duration(name string, def time.Duration) (time.Duration, error) {
	v := lookup(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	return d, nil
}
