package service

import (
	"fmt"
	"net/url"
	"strings"

	"datapilot/internal/core"
)

// connectTimeoutSeconds bounds how long a dial to a target database may
// take, for both connection tests and query execution.
const connectTimeoutSeconds = 5

// driverForType maps a connection type to a registered database/sql driver.
func driverForType(connType string) string {
	switch connType {
	case "", "postgresql", "postgres":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlserver", "mssql":
		return "sqlserver"
	case "sqlite":
		return "sqlite"
	default:
		return ""
	}
}

// pgValue quotes one keyword/value connection string value so whitespace or
// quotes in a stored credential cannot terminate the value and inject extra
// parameters.
func pgValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// buildDSN produces a driver name and connection string for a target
// connection, with the connect timeout baked in. The password is passed
// separately so it never has to live on the stored model.
func buildDSN(conn *core.DataConnection, password string) (string, string, error) {
	driver := driverForType(conn.ConnectionType)
	if driver == "" {
		return "", "", fmt.Errorf("unsupported connection type: %s", conn.ConnectionType)
	}

	switch driver {
	case "postgres":
		sslMode := "disable"
		if conn.SSLEnabled {
			sslMode = "require"
		}
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
			pgValue(conn.Host), conn.Port, pgValue(conn.Database), pgValue(conn.Username),
			pgValue(password), sslMode, connectTimeoutSeconds)
		return driver, dsn, nil

	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%ds",
			conn.Username, password, conn.Host, conn.Port, conn.Database, connectTimeoutSeconds)
		if conn.SSLEnabled {
			dsn += "&tls=true"
		}
		return driver, dsn, nil

	case "sqlserver":
		q := url.Values{}
		q.Set("database", conn.Database)
		q.Set("dial timeout", fmt.Sprintf("%d", connectTimeoutSeconds))
		if conn.SSLEnabled {
			q.Set("encrypt", "true")
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(conn.Username, password),
			Host:     fmt.Sprintf("%s:%d", conn.Host, conn.Port),
			RawQuery: q.Encode(),
		}
		return driver, u.String(), nil

	case "sqlite":
		// Host/port/credentials do not apply; database is the file path.
		return driver, conn.Database, nil
	}

	return "", "", fmt.Errorf("unsupported connection type: %s", conn.ConnectionType)
}
