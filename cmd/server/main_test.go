package main

import (
	"net"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carely/go-auth/config"
)

func newTestApp(addr string) *App {
	return &App{
		config: &config.Config{HTTP: config.HTTP{Addr: addr}},
		logger: newLogger(config.Log{Format: "json"}),
		srv:    fiber.New(fiber.Config{DisableStartupMessage: true}),
	}
}

func TestServeReportsBindErrors(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	app := newTestApp(taken.Addr().String())
	err = app.serve()
	require.Error(t, err)
	assert.Nil(t, app.errc)
}
