package graph

// Store backend drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// StoreConfig selects and configures the store backend.
type StoreConfig struct {
	Driver string `conf:"driver" yaml:"driver" json:"driver"`
	DSN    string `conf:"dsn"    yaml:"dsn"    json:"dsn"`
}
