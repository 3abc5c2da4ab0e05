package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aneury1/scsh-scripts/internal/domain"
)

// rulesYAML is the on-disk form of the policy configuration. Validity is
// a duration string for easier human editing ("720h", "30d").
type rulesYAML struct {
	Default *policyYAML `yaml:"default"`
	Rules   []ruleYAML  `yaml:"rules"`
}

type ruleYAML struct {
	Pattern string     `yaml:"pattern"`
	Policy  policyYAML `yaml:"policy"`
}

type policyYAML struct {
	Name                               string `yaml:"name"`
	InitialRequestsApproved            bool   `yaml:"initial_requests_approved"`
	AuthenticatedRequestsApproved      bool   `yaml:"authenticated_requests_approved"`
	DeclineExpiredAuthenticatedRequest bool   `yaml:"decline_expired_authenticated_request"`
	Validity                           string `yaml:"validity"`
}

// LoadEngineFromFile builds an engine from a YAML rules file. The file
// must name a default policy.
func LoadEngineFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return LoadEngineFromBytes(data)
}

// LoadEngineFromBytes builds an engine from YAML bytes.
func LoadEngineFromBytes(data []byte) (*Engine, error) {
	var ry rulesYAML
	if err := yaml.Unmarshal(data, &ry); err != nil {
		return nil, fmt.Errorf("parse policy YAML: %w", err)
	}
	if ry.Default == nil {
		return nil, domain.ErrNoDefault
	}
	def, err := policyFromYAML(*ry.Default)
	if err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	engine := NewEngine(def)
	for _, r := range ry.Rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("policy rule %q has no pattern", r.Policy.Name)
		}
		p, err := policyFromYAML(r.Policy)
		if err != nil {
			return nil, fmt.Errorf("policy rule %q: %w", r.Pattern, err)
		}
		if err := engine.AddRule(r.Pattern, p); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func policyFromYAML(py policyYAML) (domain.Policy, error) {
	validity, err := parseValidity(py.Validity)
	if err != nil {
		return domain.Policy{}, err
	}
	return domain.Policy{
		Name:                               py.Name,
		InitialRequestsApproved:            py.InitialRequestsApproved,
		AuthenticatedRequestsApproved:      py.AuthenticatedRequestsApproved,
		DeclineExpiredAuthenticatedRequest: py.DeclineExpiredAuthenticatedRequest,
		CertificateValidity:                validity,
	}, nil
}

// parseValidity accepts Go durations plus a day suffix ("30d"). An empty
// value falls back to 30 days.
func parseValidity(s string) (time.Duration, error) {
	if s == "" {
		return 30 * 24 * time.Hour, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if last := len(s) - 1; s[last] == 'd' {
		var days int
		for _, c := range s[:last] {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("invalid validity: %s", s)
			}
			days = days*10 + int(c-'0')
		}
		if days == 0 {
			return 0, fmt.Errorf("invalid validity: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid validity: %s", s)
}
