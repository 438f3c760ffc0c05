package config

import "strings"

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

// ResolveEnvironment maps APP_ENV (preferred) or NODE_ENV onto one of the three
// pipeline environments. Unknown or empty values resolve to development.
func ResolveEnvironment(appEnv, nodeEnv string) Environment {
	raw := strings.TrimSpace(appEnv)
	if raw == "" {
		raw = strings.TrimSpace(nodeEnv)
	}

	switch strings.ToLower(raw) {
	case "production", "prod":
		return EnvironmentProduction
	case "staging", "stage":
		return EnvironmentStaging
	default:
		return EnvironmentDevelopment
	}
}

func (e Environment) IsProduction() bool {
	return e == EnvironmentProduction
}

func (e Environment) String() string {
	return string(e)
}
