package secrets

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/plotbeam/renderauth/internal/secure"
)

// ConnectionParams holds the backing-store connection parameters resolved
// from the secret source. The password is kept in a memguard-backed buffer
// and only decrypted while building a DSN.
type ConnectionParams struct {
	// Driver is the database/sql driver name: "postgres" or "mysql"
	Driver   string
	Host     string
	Port     string
	Database string
	User     string
	SSLMode  string

	password *secure.Buffer
}

// NewConnectionParams builds params directly, protecting the password. Used
// by wiring code and tests that bypass a secret source.
func NewConnectionParams(driver, host, port, database, user, password, sslMode string) (*ConnectionParams, error) {
	buf, err := secure.NewBuffer([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("failed to protect password: %w", err)
	}
	return &ConnectionParams{
		Driver:   driver,
		Host:     host,
		Port:     port,
		Database: database,
		User:     user,
		SSLMode:  sslMode,
		password: buf,
	}, nil
}

// DSN builds the driver-specific connection string. The returned string
// contains the plaintext password; hand it to sql.Open and drop it.
func (p *ConnectionParams) DSN() (string, error) {
	locked, err := p.password.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open password buffer: %w", err)
	}
	defer locked.Destroy()
	password := string(locked.Bytes())

	switch p.Driver {
	case "postgres":
		parts := []string{
			fmt.Sprintf("host=%s", p.Host),
			fmt.Sprintf("port=%s", p.Port),
			fmt.Sprintf("dbname=%s", p.Database),
			fmt.Sprintf("user=%s", p.User),
		}
		if password != "" {
			parts = append(parts, fmt.Sprintf("password=%s", password))
		}
		sslmode := p.SSLMode
		if sslmode == "" {
			sslmode = "require"
		}
		parts = append(parts, fmt.Sprintf("sslmode=%s", sslmode))
		return strings.Join(parts, " "), nil

	case "mysql":
		// The driver's own formatter handles passwords containing DSN
		// metacharacters.
		mc := mysql.NewConfig()
		mc.User = p.User
		mc.Passwd = password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(p.Host, p.Port)
		mc.DBName = p.Database
		mc.ParseTime = true
		return mc.FormatDSN(), nil

	default:
		return "", fmt.Errorf("unsupported database driver: %s", p.Driver)
	}
}

// String returns a redacted description safe for logs
func (p *ConnectionParams) String() string {
	return fmt.Sprintf("%s://%s@%s:%s/%s (password [REDACTED])",
		p.Driver, p.User, p.Host, p.Port, p.Database)
}

// Close destroys the protected password buffer
func (p *ConnectionParams) Close() {
	if p.password != nil {
		p.password.Destroy()
	}
}
