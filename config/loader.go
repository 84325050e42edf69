package config

import (
	"os"

	"github.com/Velocidex/yaml/v2"
	errors "github.com/pkg/errors"
)

var (
	missingPartyNameError = errors.New("Party.name must be set")
)

type loader_func func(self *Loader) (*Config, error)

// Loaders are chained - the first loader that returns a config wins.
type Loader struct {
	verbose bool

	loaders []loader_func
}

func (self *Loader) WithVerbose(verbose bool) *Loader {
	self = self.Copy()
	self.verbose = verbose
	return self
}

func (self *Loader) WithFileLoader(filename string) *Loader {
	if filename == "" {
		return self
	}

	self = self.Copy()
	self.loaders = append(self.loaders, func(self *Loader) (*Config, error) {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		return read_config_from_bytes(data)
	})
	return self
}

func (self *Loader) WithLiteralLoader(serialized []byte) *Loader {
	if len(serialized) == 0 {
		return self
	}

	self = self.Copy()
	self.loaders = append(self.loaders, func(self *Loader) (*Config, error) {
		return read_config_from_bytes(serialized)
	})
	return self
}

func (self *Loader) WithEnvLiteralLoader(env_var string) *Loader {
	serialized, pres := os.LookupEnv(env_var)
	if !pres {
		return self
	}
	return self.WithLiteralLoader([]byte(serialized))
}

func (self *Loader) Copy() *Loader {
	return &Loader{
		verbose: self.verbose,
		loaders: self.loaders,
	}
}

func (self *Loader) LoadAndValidate() (*Config, error) {
	for _, loader := range self.loaders {
		config_obj, err := loader(self)
		if err != nil {
			continue
		}

		return config_obj, config_obj.Validate()
	}
	return nil, errors.New("Unable to load config from any source")
}

func read_config_from_bytes(data []byte) (*Config, error) {
	result := &Config{}
	err := yaml.UnmarshalStrict(data, result)
	if err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	return result, nil
}
