package walletauth

import (
	"fmt"
	"strings"
)

// Environment selects which backend deployment the app talks to
type Environment string

const (
	EnvBeta Environment = "beta"
	EnvProd Environment = "prod"
)

// ParseEnvironment accepts beta or prod (production is an alias for prod)
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "beta":
		return EnvBeta, nil
	case "prod", "production":
		return EnvProd, nil
	}
	return "", fmt.Errorf("unknown environment %q (want beta or prod)", s)
}
