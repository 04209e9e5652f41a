// Package config reads the engine's process environment into a single,
// immutable Config value (spec §6 "Environment (recognized)"). Every
// positive-integer variable falls back to its default when unset or
// unparsable; nothing here panics on a bad environment.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config is the fully resolved process configuration.
type Config struct {
	Port int

	StoreDriver   string
	StoreURI      string
	StoreDatabase string

	ModelName      string
	OpenAIAPIKey   string
	FireworksKey   string
	FireworksModel string

	MaxDepth             int
	MaxChildren          int
	RouterIndexLimit     int
	SpecialistIndexLimit int
	MaxConcurrentRuns    int

	MainRouterSlug string
	MainRouterName string

	LogLevel string
}

const (
	defaultPort                 = 4000
	defaultStoreDriver           = "memory"
	defaultModelName             = "gpt-4o"
	defaultMaxDepth              = 2
	defaultMaxChildren           = 3
	defaultRouterIndexLimit      = 50
	defaultSpecialistIndexLimit  = 50
	defaultMainRouterSlug        = "main-router"
	defaultMainRouterName        = "Main Router"
	defaultLogLevel              = "info"
)

// Load reads the process environment into a Config.
func Load() Config {
	return Config{
		Port: positiveIntEnv("PORT", defaultPort),

		StoreDriver:   stringEnv("STORE_DRIVER", defaultStoreDriver),
		StoreURI:      os.Getenv("STORE_URI"),
		StoreDatabase: os.Getenv("STORE_DATABASE"),

		ModelName:      stringEnv("MODEL_NAME", defaultModelName),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		FireworksKey:   os.Getenv("FIREWORKS_API_KEY"),
		FireworksModel: os.Getenv("FIREWORKS_MODEL"),

		MaxDepth:             positiveIntEnv("A2A_MAX_DEPTH", defaultMaxDepth),
		MaxChildren:          positiveIntEnv("A2A_MAX_CHILDREN", defaultMaxChildren),
		RouterIndexLimit:     positiveIntEnv("A2A_ROUTER_INDEX_LIMIT", defaultRouterIndexLimit),
		SpecialistIndexLimit: positiveIntEnv("A2A_SPECIALIST_INDEX_LIMIT", defaultSpecialistIndexLimit),
		MaxConcurrentRuns:    positiveIntEnv("A2A_MAX_CONCURRENT_RUNS", runtime.NumCPU()),

		MainRouterSlug: stringEnv("MAIN_ROUTER_SLUG", defaultMainRouterSlug),
		MainRouterName: stringEnv("MAIN_ROUTER_NAME", defaultMainRouterName),

		LogLevel: stringEnv("LOG_LEVEL", defaultLogLevel),
	}
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveIntEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
