package main

import (
	"fmt"

	"sugarscape.ai/internal/sim/policy"
)

func loadParams(path string, pol policy.Policy) error {
	lin, ok := pol.(*policy.Linear)
	if !ok {
		return fmt.Errorf("policy %T has no parameters", pol)
	}
	return policy.LoadParams(path, lin)
}

func saveParams(path string, pol policy.Policy) error {
	lin, ok := pol.(*policy.Linear)
	if !ok {
		return fmt.Errorf("policy %T has no parameters", pol)
	}
	return policy.SaveParams(path, lin)
}
