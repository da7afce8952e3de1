package env

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"agentloop/internal/application/port/output"

	"github.com/joho/godotenv"
)

var _ output.SecretSource = (*EnvService)(nil)

// EnvService loads .env files once and reads process environment values.
type EnvService struct {
	appEnv string
}

// NewEnvService loads <dir>/.env and then <dir>/.env.<APP_ENV>; the second
// file overrides the first. Missing files are not an error.
func NewEnvService(dir string) *EnvService {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil {
		log.Printf("Info: no .env file with secrets found (this is OK for CI/CD)")
	}

	envFile := filepath.Join(dir, fmt.Sprintf(".env.%s", appEnv))
	if err := godotenv.Overload(envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load %s: %v", envFile, err)
	}

	return &EnvService{appEnv: appEnv}
}

func (e *EnvService) AppEnv() string {
	return e.appEnv
}

func (e *EnvService) Get(key string) string {
	return os.Getenv(key)
}

// FirstOf returns the value of the first key that is set.
func (e *EnvService) FirstOf(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func (e *EnvService) MustGet(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("ENV %s is missing", key)
	}
	return val, nil
}

func (e *EnvService) GetBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (e *EnvService) GetInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}
