package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_ReturnsConfigError(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/channelvault")
	t.Setenv("FETCHER_TIMEOUT", "soon")

	err := run()
	assert.ErrorContains(t, err, "config: FETCHER_TIMEOUT")
	assert.NotErrorIs(t, err, errImportAborted)
}
