package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv preloads path's KEY=VALUE pairs into the process environment
// before the Environment loader runs; an empty path means ./.env. A path
// that does not exist is skipped silently: nil is returned and no warning
// is logged. Existing environment variables are never overwritten — an operator's
// real environment always wins over a checked-in .env file.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ResolveEnvFile picks the .env path in this order: an explicit --env-file
// switch value, then
// BootstrapOptions.EnvFile, then the current directory's .env.
func ResolveEnvFile(switchValue, optionsValue string) string {
	if switchValue != "" {
		return switchValue
	}
	if optionsValue != "" {
		return optionsValue
	}
	return ".env"
}
