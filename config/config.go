package config

// The node config. Everything the services need to run is parsed out
// of a single YAML file (or a literal string in tests) into this
// object, which is then passed around explicitly.

type Config struct {
	// The legal identity this node presents to peers.
	PartyName string `yaml:"Party.name,omitempty"`

	// Advertised in SessionInit messages so peers can tell which
	// application stack initiated a session.
	ApplicationId string `yaml:"Application.id,omitempty"`

	// Defaults to 1. The flow framework does not read it: session
	// flow versions come from the flow registrations.
	PlatformVersion int `yaml:"Application.platform_version,omitempty"`

	Datastore *DatastoreConfig `yaml:"Datastore,omitempty"`
	Flows     *FlowsConfig     `yaml:"Flows,omitempty"`
	Logging   *LoggingConfig   `yaml:"Logging,omitempty"`

	// Principals allowed to use the RPC surface.
	Users []*UserConfig `yaml:"Users,omitempty"`
}

type DatastoreConfig struct {
	// One of "Memory" or "FileBaseDataStore".
	Implementation string `yaml:"implementation,omitempty"`

	// Directory holding checkpoint files for FileBaseDataStore.
	Location string `yaml:"location,omitempty"`
}

type FlowsConfig struct {
	// Token bucket rate for inbound SessionInit processing. Zero
	// disables throttling.
	MaxInitsPerSecond float64 `yaml:"max_inits_per_second,omitempty"`

	// Buffer size of feed subscriber channels. When a subscriber
	// falls this far behind, the oldest rows are dropped and a loss
	// marker is delivered instead.
	FeedBufferSize int `yaml:"feed_buffer_size,omitempty"`
}

type LoggingConfig struct {
	Verbose bool   `yaml:"verbose,omitempty"`
	File    string `yaml:"file,omitempty"`
}

type UserConfig struct {
	Name  string   `yaml:"name,omitempty"`
	Roles []string `yaml:"roles,omitempty"`

	// Extra permissions granted directly, e.g.
	// "StartFlow.com.example.PingFlow".
	Permissions []string `yaml:"permissions,omitempty"`
}

func (self *Config) Validate() error {
	if self.PartyName == "" {
		return missingPartyNameError
	}

	if self.ApplicationId == "" {
		self.ApplicationId = "corda"
	}

	if self.PlatformVersion == 0 {
		self.PlatformVersion = 1
	}

	if self.Datastore == nil {
		self.Datastore = &DatastoreConfig{Implementation: "Memory"}
	}

	if self.Flows == nil {
		self.Flows = &FlowsConfig{}
	}

	if self.Flows.FeedBufferSize == 0 {
		self.Flows.FeedBufferSize = 1000
	}

	if self.Logging == nil {
		self.Logging = &LoggingConfig{}
	}

	return nil
}
