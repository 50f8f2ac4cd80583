package model_test

import (
	"testing"

	"github.com/algohub/algohub/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseTargets(t *testing.T) {
	t.Parallel()
	got := model.ParseTargets("10.0.0.0/24, 10.0.1.0/24", " 10.0.0.0/24\t", "", "dc01.corp.local")
	require.Equal(t, []string{"10.0.0.0/24", "10.0.1.0/24", "dc01.corp.local"}, got)
	require.Empty(t, model.ParseTargets(" , "))
}

func TestParseSubnets(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		then     string
	}{
		{"valid", "192.168.1.0/24", ""},
		{"mask 1", "10.0.0.0/1", ""},
		{"mask 30", "10.0.0.4/30", ""},
		{"no mask", "192.168.1.0", "expected format X.X.X.X/Y"},
		{"ipv6", "fe80::/64", "expected format X.X.X.X/Y"},
		{"mask 31", "10.0.0.0/31", "mask /31 must be between /1 and /30"},
		{"mask 0", "0.0.0.0/0", "mask /0 must be between /1 and /30"},
		{"octet", "10.0.300.0/24", `octet "300" must be between 0 and 255`},
		{"garbage", "10.0.0.0/24; rm -rf", "expected format X.X.X.X/Y"},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			valid, err := model.ParseSubnets([]string{tt.given})
			if tt.then == "" {
				require.NoError(t, err)
				require.Equal(t, []string{tt.given}, valid)
				return
			}
			require.ErrorIs(t, err, model.ErrInvalidTarget)
			require.ErrorContains(t, err, tt.then)
			require.Empty(t, valid)
		})
	}

	t.Run("mixed", func(t *testing.T) {
		t.Parallel()
		valid, err := model.ParseSubnets([]string{" 10.0.0.0/24 ", "", "bad", "10.0.1.0/24"})
		require.Error(t, err)
		require.Equal(t, []string{"10.0.0.0/24", "10.0.1.0/24"}, valid)
	})
}

func TestCredentials(t *testing.T) {
	t.Parallel()
	c := model.Credentials{Domain: "corp.local", User: "alice", Password: "S3cret!"}
	require.NoError(t, c.Validate())
	require.Equal(t, "alice@corp.local", c.String())
	require.NotContains(t, c.LogValue().String(), "S3cret!")

	err := model.Credentials{Domain: " "}.Validate()
	require.ErrorIs(t, err, model.ErrMissingCredential)
	require.ErrorContains(t, err, "domain")
	require.ErrorContains(t, err, "user")
	require.ErrorContains(t, err, "password")
}

func TestNames(t *testing.T) {
	t.Parallel()
	require.Equal(t, "10_0_0_0_24", model.SubnetDirName("10.0.0.0/24"))
	require.Equal(t, "10.0.0.0_24", model.SafeName("10.0.0.0/24"))
	require.Equal(t, "fe80_64", model.SafeName(`fe80::/64`))
	require.Equal(t, "a_b", model.SafeName(`a\b`))
}

func TestBaseDN(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		given string
		then  string
	}{
		{"corp.local", "DC=corp,DC=local"},
		{"north.sevenkingdoms.local.", "DC=north,DC=sevenkingdoms,DC=local"},
		{" corp ", "DC=corp"},
		{"", ""},
	}

	for _, tt := range testCases {
		t.Run(tt.given, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.then, model.BaseDN(tt.given))
		})
	}

	layout := model.Layout{Root: "scan"}
	require.Equal(t, "scan/acl/dc01.corp.local_acl.json", layout.ACLFile("dc01.corp.local"))
}
