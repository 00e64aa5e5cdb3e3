package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dDoc/lib/store"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type EngineType string

const (
	EngineMaple  EngineType = "maple"
	EngineBolt   EngineType = "bolt"
	EngineSQLite EngineType = "sqlite"
)

// ServerConfig holds all configuration parameters of a document server.
type ServerConfig struct {
	// Engine and storage
	Engine  EngineType
	DataDir string // Database files or, for maple, snapshots. Empty keeps maple in memory.

	// Schema of the served store
	DBName        string
	SchemaVersion uint64
	Collections   []store.CollectionSpec

	// HTTP api settings
	Endpoint      string
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// Schema returns the store schema described by the configuration.
func (c *ServerConfig) Schema() store.Schema {
	return store.Schema{
		Name:        c.DBName,
		Version:     c.SchemaVersion,
		Collections: c.Collections,
	}
}

// Validate checks the configuration before the server starts.
func (c *ServerConfig) Validate() error {
	switch c.Engine {
	case EngineMaple:
	case EngineBolt, EngineSQLite:
		if c.DataDir == "" {
			return fmt.Errorf("engine %s needs a data directory", c.Engine)
		}
	default:
		return fmt.Errorf("unknown engine %q, must be one of maple, bolt, sqlite", c.Engine)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	return c.Schema().Validate()
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Storage")
	addField("Engine", string(c.Engine))
	addField("Data Directory", c.DataDir)
	addField("Database", c.DBName)
	addField("Schema Version", strconv.FormatUint(c.SchemaVersion, 10))

	addSection("Collections")
	for _, col := range c.Collections {
		var indexes []string
		for _, idx := range col.Indexes {
			if idx.Unique {
				indexes = append(indexes, idx.Field+" (unique)")
			} else {
				indexes = append(indexes, idx.Field)
			}
		}
		addField(col.Name, strings.Join(indexes, ", "))
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
