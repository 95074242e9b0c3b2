package domain

// DatabaseDriver represents the engine backing a consolidated store.
type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverCSV      DatabaseDriver = "csv"
)

// DatabaseConnection holds what is needed to reach a consolidated store.
type DatabaseConnection struct {
	Driver   DatabaseDriver `json:"driver" mapstructure:"driver" validate:"required,oneof=sqlite mysql postgres mongodb csv"`
	Host     string         `json:"host" mapstructure:"host"`         // hostname, mongodb URI, or file/dir path (sqlite, csv)
	Port     int            `json:"port" mapstructure:"port"`         // 0 means driver default
	Database string         `json:"database" mapstructure:"database"` // db name, unused for sqlite and csv
	Username string         `json:"username" mapstructure:"username"`
	Password string         `json:"-" mapstructure:"password"`
	SSLMode  string         `json:"sslMode" mapstructure:"sslmode"`
}
