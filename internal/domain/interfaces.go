package domain

// KnowledgeBase is the read-only view of curated facts used during
// evaluation. Implementations must be safe for concurrent reads.
type KnowledgeBase interface {
	Drug(id string) (*Drug, bool)
	EnzymeRoles(drugID string) []DrugEnzymeRole
	TransporterRoles(drugID string) []DrugTransporterRole
	PDEffects(drugID string) []DrugPDEffect
	Parameters(drugID string) (*ParameterSet, bool)
	Enzyme(id string) (*Enzyme, bool)
	Transporter(id string) (*Transporter, bool)
	PDEffect(id string) (*PDEffect, bool)
	TransportersInFamily(family string) []string
	// LookupName returns every drug id whose generic name or alias equals
	// the normalized name.
	LookupName(name string) []string
	// Terms returns every resolvable name (generic names and aliases).
	Terms() []string
	Stats() KnowledgeBaseStats
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetEngineConfig() *EngineConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
