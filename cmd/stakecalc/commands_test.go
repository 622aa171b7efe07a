package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, err
	}
	var v map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v, nil
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		key  string
		want any
	}{
		{name: "scale up", args: []string{"scale", "--amount", "1.5", "--decimals", "8"}, key: "value", want: "150000000"},
		{name: "scale down", args: []string{"scale", "--down", "--amount", "150000000", "--decimals", "8"}, key: "value", want: "1.5"},
		{name: "aprk", args: []string{"aprk", "--days", "100", "--curve", "0.002"}, key: "aprK", want: "1.2"},
		{name: "unlock locked", args: []string{"unlock", "--period", "60", "--window", "30", "--now", "15000"}, key: "isUnlocked", want: false},
		{name: "unlock open", args: []string{"unlock", "--period", "60", "--window", "30", "--now", "70000"}, key: "isUnlocked", want: true},
		{
			name: "project stake",
			args: []string{"project", "--amount", "100", "--period", "100", "--curve", "0.002", "--total", "10000000000", "--yearly", "3600000000000"},
			key:  "apr",
			want: "19,636.36",
		},
		{
			name: "share",
			args: []string{"share", "--token", "1:8:900000000", "--token", "1:8:400000000"},
			key:  "share",
			want: "20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[tt.key])
		})
	}
}

func TestCommandErrors(t *testing.T) {
	tests := [][]string{
		{"project", "--action", "withdraw"},
		{"aprk", "--days", "x", "--curve", "0.002"},
		{"share", "--token", "1:8"},
	}
	for _, args := range tests {
		_, err := run(t, args...)
		assert.Error(t, err, args)
	}
}
