package store

import (
	"fmt"
	"sort"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Driver opens a database dialect.
type Driver struct {
	Open func(dsn string) gorm.Dialector

	// SingleWriter databases get one pooled connection, which serializes
	// transactions and keeps :memory: databases shared. Row locks are
	// not available there.
	SingleWriter bool
}

var drivers = map[string]Driver{
	DriverSQLite:   {Open: sqlite.Open, SingleWriter: true},
	DriverPostgres: {Open: postgres.Open},
}

// lookupDriver returns the registered driver called name.
func lookupDriver(name string) (Driver, error) {
	d, ok := drivers[name]
	if !ok {
		return Driver{}, fmt.Errorf("unsupported database driver %q (have %v)", name, Drivers())
	}
	return d, nil
}

// Drivers lists the registered driver names.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterDriver adds or replaces a database driver. Call it before New.
func RegisterDriver(name string, d Driver) {
	drivers[name] = d
}
