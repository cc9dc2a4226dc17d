package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		User:     "fetchcache",
		Password: "pw",
		Host:     "db",
		Port:     "5432",
		DBName:   "fetch_cache",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=fetchcache password=pw dbname=fetch_cache sslmode=disable", cfg.DSN())
}
