package config

import (
	"fmt"
	"strings"
)

type Variable struct {
	Name    string `hcl:"name,label"`
	Default string `hcl:"default,optional"`
	Secret  bool   `hcl:"secret,optional"`
}

func (v *Variable) Validate() error {
	if v.Secret && v.Default != "" {
		return fmt.Errorf("Invalid secret; Secret variable '%s' cannot have a default value set in config", v.Name)
	}
	return nil
}

// EnvName returns the environment variable name checked for this variable,
// e.g. "brave_api_key" resolves from SURVEYOR_BRAVE_API_KEY
func (v *Variable) EnvName() string {
	return "SURVEYOR_" + strings.ToUpper(v.Name)
}
