package skill

import (
	"fmt"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/domain"
	"gopkg.in/yaml.v3"
)

// LoadManifest parses a skill manifest's documented YAML subset (scalars,
// maps, sequences, block scalars, quoted strings) into a Definition.
// yaml.v3 is a strict superset of the documented subset, so the manifest's
// own constraints are enforced by Register's validation, not the parser.
func LoadManifest(raw []byte) (Definition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Definition{}, fmt.Errorf("skill: parse manifest: %w", err)
	}
	return normalizeManifest(doc)
}

func normalizeManifest(doc map[string]any) (Definition, error) {
	def := Definition{
		ID:          str(doc["id"]),
		Name:        str(doc["name"]),
		Version:     str(doc["version"]),
		Description: str(doc["description"]),
	}

	if inputsRaw, ok := toMap(doc["inputs"]); ok {
		def.Inputs = make(map[string]domain.SkillInput, len(inputsRaw))
		for name, raw := range inputsRaw {
			spec, _ := toMap(raw)
			def.Inputs[name] = domain.SkillInput{
				Type:        str(spec["type"]),
				Description: str(spec["description"]),
				Required:    boolOf(spec["required"]),
				Default:     spec["default"],
			}
		}
	}

	if stepsRaw, ok := doc["steps"].([]any); ok {
		def.Steps = make([]domain.SkillStep, 0, len(stepsRaw))
		for _, raw := range stepsRaw {
			stepMap, _ := toMap(raw)
			params, _ := toMap(stepMap["params"])
			def.Steps = append(def.Steps, domain.SkillStep{
				ID:        str(stepMap["id"]),
				Action:    str(stepMap["action"]),
				Params:    params,
				Condition: stepMap["condition"],
			})
		}
	}

	def.OutputTemplate = doc["output"]
	return def, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

// toMap normalizes yaml.v3's map[string]any-or-map[any]any ambiguity into
// a plain map[string]any.
func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
