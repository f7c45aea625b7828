package testutil

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/docwriter/pkg/database"
)

// parseConnString turns a postgres:// URL (as returned by the
// testcontainers postgres module) into a database.Config.
func parseConnString(raw string) database.Config {
	u, err := url.Parse(raw)
	if err != nil {
		return database.Config{}
	}
	password, _ := u.User.Password()
	port, _ := strconv.Atoi(u.Port())

	return database.Config{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        strings.TrimPrefix(u.Path, "/"),
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 0,
		ConnMaxIdleTime: 0,
	}
}
