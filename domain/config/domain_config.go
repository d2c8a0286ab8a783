package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Graph constraints
	MaxNodesPerGraph int
	MaxEdgesPerGraph int

	// Edge constraints
	AllowSelfConnections bool
	AllowDuplicateEdges  bool

	// Crop history
	MaxHistorySteps int

	// Generation
	DefaultImageModel string
	DefaultVideoModel string
	GenerationTimeout time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxNodesPerGraph: 500,
		MaxEdgesPerGraph: 2000,

		AllowSelfConnections: false,
		AllowDuplicateEdges:  false,

		MaxHistorySteps: 20,

		DefaultImageModel: "flux-schnell",
		DefaultVideoModel: "kling-v2",
		GenerationTimeout: 5 * time.Minute,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxNodesPerGraph = 200
	config.MaxEdgesPerGraph = 800

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxNodesPerGraph = 10000
	config.MaxEdgesPerGraph = 50000
	config.MaxHistorySteps = 50

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxNodesPerGraph <= 0 {
		return fmt.Errorf("max nodes per graph must be positive, got %d", c.MaxNodesPerGraph)
	}
	if c.MaxEdgesPerGraph <= 0 {
		return fmt.Errorf("max edges per graph must be positive, got %d", c.MaxEdgesPerGraph)
	}
	if c.MaxHistorySteps <= 0 {
		return fmt.Errorf("max history steps must be positive, got %d", c.MaxHistorySteps)
	}
	return nil
}
