package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the control-plane config from a file.
func Load(filepath string) (*ServerConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *ServerConfig, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				out, err = nil, e
				return
			}
			out, err = nil, &ConfigError{Message: toString(r)}
		}
	}()

	var marshall *ServerConfigMarshall
	if err := yaml.Unmarshal(conf, &marshall); err != nil {
		return nil, err
	}
	return TrySeal(marshall), nil
}

type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "invalid configuration"
}
