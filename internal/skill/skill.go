// Package skill implements the kernel's skill executor: declarative,
// step-based pipelines with template-interpolated parameters.
package skill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/store"
	"github.com/bykadzu/Aether-agent-os-sub005/pkg/logger"
)

// Definition is an alias so callers don't need to import the domain
// package for the common case.
type Definition = domain.SkillDefinition

var (
	ErrInvalidDefinition = errors.New("invalid skill definition")
	ErrNotFound          = errors.New("skill not found")
	ErrUnknownAction     = errors.New("unknown action")
)

// StepResult is one step's recorded outcome.
type StepResult struct {
	StepID  string `json:"stepId"`
	Output  any    `json:"output"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of an Execute call.
type Result struct {
	Success    bool         `json:"success"`
	Output     any          `json:"output"`
	Steps      []StepResult `json:"steps"`
	DurationMs int64        `json:"durationMs"`
	Error      string       `json:"error,omitempty"`
}

// Registry holds registered skill definitions and pluggable action
// handlers.
type Registry struct {
	mu      sync.RWMutex
	log     *logger.Logger
	store   store.Store
	skills  map[string]Definition
	actions map[string]ActionFunc
}

// New builds a Registry with the first-class actions pre-registered and
// hydrates it from st if non-nil.
func New(st store.Store, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("skill")
	}
	r := &Registry{
		log:     log,
		store:   st,
		skills:  make(map[string]Definition),
		actions: defaultActions(),
	}
	if st != nil {
		if rows, err := st.GetAllSkills(); err == nil {
			for _, s := range rows {
				r.skills[s.ID] = s
			}
		}
	}
	return r
}

// RegisterAction installs or replaces a pluggable action handler.
func (r *Registry) RegisterAction(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

// Register validates and persists a skill definition, replacing any prior
// definition with the same id.
func (r *Registry) Register(def Definition) error {
	if err := validate(def); err != nil {
		return err
	}
	r.mu.Lock()
	r.skills[def.ID] = def
	r.mu.Unlock()
	if r.store != nil {
		return r.store.UpsertSkill(def)
	}
	return nil
}

func validate(def Definition) error {
	if def.ID == "" || def.Name == "" || def.Version == "" {
		return fmt.Errorf("%w: id, name and version are required", ErrInvalidDefinition)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}
	if def.OutputTemplate == nil {
		return fmt.Errorf("%w: output template is required", ErrInvalidDefinition)
	}
	seen := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID == "" {
			return fmt.Errorf("%w: step id required", ErrInvalidDefinition)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidDefinition, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Get returns the registered definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.skills[id]
	return d, ok
}

// List returns every registered definition.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.skills))
	for _, d := range r.skills {
		out = append(out, d)
	}
	return out
}

// Delete removes a registered skill.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	delete(r.skills, id)
	r.mu.Unlock()
	if r.store != nil {
		return r.store.DeleteSkill(id)
	}
	return nil
}

// Execute resolves inputs against defaults, then runs each step in order,
// halting on the first failure.
func (r *Registry) Execute(ctx context.Context, skillID string, inputs map[string]any) (Result, error) {
	def, ok := r.Get(skillID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, skillID)
	}

	resolvedInputs, err := resolveInputs(def, inputs)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	start := time.Now()
	sc := scope{Inputs: resolvedInputs, Steps: make(map[string]any)}
	results := make([]StepResult, 0, len(def.Steps))

	for _, step := range def.Steps {
		if step.Condition != nil {
			condVal := interpolate(step.Condition, sc)
			if isFalsy(condVal) {
				results = append(results, StepResult{StepID: step.ID, Skipped: true})
				sc.Steps[step.ID] = nil
				continue
			}
		}

		params, _ := interpolate(step.Params, sc).(map[string]any)
		r.mu.RLock()
		action, known := r.actions[step.Action]
		r.mu.RUnlock()
		if !known {
			errMsg := fmt.Sprintf("%s: %s", ErrUnknownAction, step.Action)
			results = append(results, StepResult{StepID: step.ID, Error: errMsg})
			return Result{Success: false, Steps: results, DurationMs: time.Since(start).Milliseconds(), Error: errMsg}, nil
		}

		out, err := action(ctx, params)
		if err != nil {
			results = append(results, StepResult{StepID: step.ID, Output: out, Error: err.Error()})
			return Result{Success: false, Steps: results, DurationMs: time.Since(start).Milliseconds(), Error: err.Error()}, nil
		}

		results = append(results, StepResult{StepID: step.ID, Output: out})
		sc.Steps[step.ID] = out
	}

	output := interpolate(def.OutputTemplate, sc)
	return Result{Success: true, Output: output, Steps: results, DurationMs: time.Since(start).Milliseconds()}, nil
}

func resolveInputs(def Definition, provided map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(provided))
	for k, v := range provided {
		out[k] = v
	}
	for name, spec := range def.Inputs {
		if _, present := out[name]; present {
			continue
		}
		if spec.Default != nil {
			out[name] = spec.Default
			continue
		}
		if spec.Required {
			return nil, fmt.Errorf("skill: missing required input %q", name)
		}
	}
	return out, nil
}
