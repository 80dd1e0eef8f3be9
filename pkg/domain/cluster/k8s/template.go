package k8s

import (
	"fmt"
	"io"
	"os"

	"github.com/skein-run/skein/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Template is the administrator-provided custom-resource skeleton the
// builder rewrites per run. One YAML file, two documents: the cluster
// body and the autoscaler body, told apart by kind.
type Template struct {
	cluster    map[string]any
	autoscaler map[string]any
}

// LoadTemplate reads and splits the template file. Both documents are
// required; a template without an autoscaler body cannot serve
// autoscaled requests.
func LoadTemplate(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tpl := &Template{}
	dec := yaml.NewDecoder(f)
	for {
		doc := map[string]any{}
		if err := dec.Decode(&doc); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: cluster template %s is not yaml: %s", domain.ErrValidation, path, err)
		}

		switch kind, _ := doc["kind"].(string); kind {
		case "DaskCluster":
			tpl.cluster = doc
		case "DaskAutoscaler":
			tpl.autoscaler = doc
		default:
			return nil, fmt.Errorf("%w: cluster template %s has unexpected kind '%s'", domain.ErrValidation, path, kind)
		}
	}

	if tpl.cluster == nil || tpl.autoscaler == nil {
		return nil, fmt.Errorf("%w: cluster template %s must carry a DaskCluster and a DaskAutoscaler document", domain.ErrValidation, path)
	}
	return tpl, nil
}

// deepCopy keeps the loaded template pristine across builds.
func deepCopy(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// dig walks nested maps, creating levels that do not exist yet.
func dig(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	return m
}

// firstContainer returns spec.containers[0], the main container of a
// worker or scheduler pod spec.
func firstContainer(podSpec map[string]any) (map[string]any, error) {
	containers, ok := podSpec["containers"].([]any)
	if !ok || len(containers) == 0 {
		return nil, fmt.Errorf("%w: cluster template pod spec has no containers", domain.ErrValidation)
	}
	c, ok := containers[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: cluster template container is malformed", domain.ErrValidation)
	}
	return c, nil
}

func appendTo(m map[string]any, key string, items ...any) {
	current, _ := m[key].([]any)
	m[key] = append(current, items...)
}
