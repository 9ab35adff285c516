package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandRejectsUnknownTransport(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--transport", "carrier-pigeon"})
	err := cmd.Execute()
	assert.EqualError(t, err, "invalid transport: carrier-pigeon")
}

func TestRootCommandDefaults(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "stdio", cmd.Flags().Lookup("transport").DefValue)
	assert.Equal(t, "127.0.0.1", cmd.Flags().Lookup("host").DefValue)
	assert.Equal(t, "8080", cmd.Flags().Lookup("port").DefValue)
}

func TestHealthExposed(t *testing.T) {
	tests := []struct {
		name        string
		transport   string
		metricsPort int
		want        bool
	}{
		{"stdio without metrics", transportStdio, 0, false},
		{"stdio with metrics", transportStdio, 9090, true},
		{"http", transportHTTP, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, healthExposed(tt.transport, tt.metricsPort))
		})
	}
}

func TestAdminAddrUsesHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9090", adminAddr("127.0.0.1", 9090))
	assert.Equal(t, "[::1]:9090", adminAddr("::1", 9090))
}
