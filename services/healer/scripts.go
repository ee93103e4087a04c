package healer

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"autoheal/pkg/render"
)

// ScriptParams tunes the remote remediation scripts.
type ScriptParams struct {
	ServicesToRestart []string `yaml:"services_to_restart"`
	KillProcesses     []string `yaml:"kill_processes"`
	LogRetentionDays  int      `yaml:"log_retention_days"`
	TopProcesses      int      `yaml:"top_processes"`
}

// DefaultScriptParams mirrors the stock remediation scripts.
func DefaultScriptParams() ScriptParams {
	return ScriptParams{
		ServicesToRestart: []string{"httpd", "nginx"},
		KillProcesses:     []string{"stress"},
		LogRetentionDays:  7,
		TopProcesses:      20,
	}
}

// LoadScriptParams overlays a YAML file onto the defaults. An empty path
// returns the defaults.
func LoadScriptParams(path string) (ScriptParams, error) {
	params := DefaultScriptParams()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ScriptParams{}, fmt.Errorf("read script params: %w", err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return ScriptParams{}, fmt.Errorf("parse script params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return ScriptParams{}, err
	}
	return params, nil
}

var shellWord = regexp.MustCompile(`^[A-Za-z0-9_.@-]+$`)

// Validate rejects values that are unsafe to splice into a shell script.
func (p ScriptParams) Validate() error {
	for _, name := range p.ServicesToRestart {
		if !shellWord.MatchString(name) {
			return fmt.Errorf("invalid service name %q", name)
		}
	}
	for _, name := range p.KillProcesses {
		if !shellWord.MatchString(name) {
			return fmt.Errorf("invalid process name %q", name)
		}
	}
	if p.LogRetentionDays <= 0 {
		return errors.New("log_retention_days must be positive")
	}
	if p.TopProcesses <= 0 {
		return errors.New("top_processes must be positive")
	}
	return nil
}

// Scripts renders the shell script body for each remote action.
type Scripts struct {
	engine *render.Engine
	params ScriptParams
}

// NewScripts binds the embedded script templates to params.
func NewScripts(engine *render.Engine, params ScriptParams) (*Scripts, error) {
	if engine == nil {
		return nil, errors.New("renderer is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	for _, action := range Actions {
		if action.Remote() && !engine.Has(templateName(action)) {
			return nil, fmt.Errorf("missing script template for %s", action)
		}
	}
	return &Scripts{engine: engine, params: params}, nil
}

// For returns the script lines for action. Unknown actions fall back to the
// diagnostic script.
func (s *Scripts) For(action Action) ([]string, error) {
	if !action.Valid() || !action.Remote() {
		action = ActionDiagnostic
	}
	return s.engine.Lines(templateName(action), s.params)
}

func templateName(action Action) string {
	return string(action) + ".sh.tmpl"
}
