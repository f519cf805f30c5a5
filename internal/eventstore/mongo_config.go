package eventstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/huangsam/subpulse/internal/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMySQLPort is used when a connection config has no port.
const DefaultMySQLPort = 3306

// Environment variables read when no config document is available.
const (
	EnvSQLHost     = "SQL_HOST"
	EnvSQLUser     = "SQL_USER"
	EnvSQLPassword = "SQL_PASSWORD"
	EnvSQLDatabase = "SQL_DATABASE"
	EnvSQLTable    = "SQL_TABLE_NAME"
	EnvSQLPort     = "SQL_PORT"
)

// connectionConfigType tags the config document holding event-store credentials.
const connectionConfigType = "db_connection_config"

// ConnectionConfig locates the MySQL event store.
type ConnectionConfig struct {
	Host      string `bson:"host"`
	User      string `bson:"user"`
	Password  string `bson:"password"`
	Database  string `bson:"database"`
	TableName string `bson:"table_name"`
	Port      int    `bson:"port"`
}

type configDocument struct {
	Type             string           `bson:"type"`
	ConnectionConfig ConnectionConfig `bson:"connection_config"`
}

// DSN renders the config as a go-sql-driver/mysql connection string.
func (c ConnectionConfig) DSN() string {
	port := c.Port
	if port == 0 {
		port = DefaultMySQLPort
	}
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	mc.DBName = c.Database
	return mc.FormatDSN()
}

// Complete reports whether the config names a host, user and database.
func (c ConnectionConfig) Complete() bool {
	return c.Host != "" && c.User != "" && c.Database != ""
}

// ConfigFromEnv reads the connection config from SQL_* environment variables.
func ConfigFromEnv() (ConnectionConfig, error) {
	cfg := ConnectionConfig{
		Host:      os.Getenv(EnvSQLHost),
		User:      os.Getenv(EnvSQLUser),
		Password:  os.Getenv(EnvSQLPassword),
		Database:  os.Getenv(EnvSQLDatabase),
		TableName: os.Getenv(EnvSQLTable),
		Port:      DefaultMySQLPort,
	}
	if p := os.Getenv(EnvSQLPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return ConnectionConfig{}, fmt.Errorf("invalid %s %q: %w", EnvSQLPort, p, err)
		}
		cfg.Port = port
	}
	if !cfg.Complete() {
		return ConnectionConfig{}, fmt.Errorf("event store connection is not configured. Set %s, %s and %s", EnvSQLHost, EnvSQLUser, EnvSQLDatabase)
	}
	return cfg, nil
}

// LoadConnectionConfig looks up the connection config document in MongoDB and falls back
// to the environment when uri is empty or the lookup fails.
func LoadConnectionConfig(ctx context.Context, uri, database, collection string) (ConnectionConfig, error) {
	if uri == "" {
		return ConfigFromEnv()
	}
	cfg, err := LoadMongoConfig(ctx, uri, database, collection)
	if err != nil {
		logging.Warn().Err(err).Msg("falling back to environment for event store connection")
		return ConfigFromEnv()
	}
	return cfg, nil
}

// LoadMongoConfig reads the {type: "db_connection_config"} document.
func LoadMongoConfig(ctx context.Context, uri, database, collection string) (ConnectionConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return ConnectionConfig{}, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	var doc configDocument
	err = client.Database(database).Collection(collection).
		FindOne(ctx, bson.M{"type": connectionConfigType}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ConnectionConfig{}, fmt.Errorf("no %s document in %s.%s", connectionConfigType, database, collection)
	}
	if err != nil {
		return ConnectionConfig{}, fmt.Errorf("failed to read connection config: %w", err)
	}
	if !doc.ConnectionConfig.Complete() {
		return ConnectionConfig{}, fmt.Errorf("connection config in %s.%s is incomplete", database, collection)
	}
	if doc.ConnectionConfig.Port == 0 {
		doc.ConnectionConfig.Port = DefaultMySQLPort
	}
	return doc.ConnectionConfig, nil
}
