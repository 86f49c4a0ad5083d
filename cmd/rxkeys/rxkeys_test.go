package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxvc/internal/credential/models"
	"rxvc/internal/identity"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeygenThenDID(t *testing.T) {
	keys := filepath.Join(t.TempDir(), "keys.json")

	out, err := execute(t, "keygen", "did:example:doctor-1", "--type", "bls,jwk", "--keys", keys)
	require.NoError(t, err)
	var refs []models.KeyRef
	require.NoError(t, json.Unmarshal([]byte(out), &refs))
	require.Len(t, refs, 2)

	_, err = execute(t, "keygen", "did:example:doctor-1", "--keys", keys)
	require.NoError(t, err)

	out, err = execute(t, "did", "did:example:doctor-1", "--keys", keys)
	require.NoError(t, err)
	var doc identity.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "did:example:doctor-1", doc.ID)
	assert.Len(t, doc.MethodsOfType(models.KeyTypeBls12381G2), 2)
	assert.Len(t, doc.MethodsOfType(models.KeyTypeJWK), 1)
}

func TestKeygenRejectsUnknownType(t *testing.T) {
	keys := filepath.Join(t.TempDir(), "keys.json")
	_, err := execute(t, "keygen", "did:example:doctor-1", "--type", "rsa", "--keys", keys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key type")
}

func TestDIDUnknownController(t *testing.T) {
	keys := filepath.Join(t.TempDir(), "keys.json")
	_, err := execute(t, "did", "did:example:nobody", "--keys", keys)
	require.Error(t, err)
}

func TestScore(t *testing.T) {
	cases := []struct {
		name       string
		args       []string
		score      int
		band       string
		approvable bool
	}{
		{name: "clean", args: nil, score: 0, band: "low", approvable: true},
		{name: "unconfirmed", args: []string{"patient_unconfirmed"}, score: 10, band: "low", approvable: true},
		{name: "high risk", args: []string{"quantity_exceeded", "doctor_unauthorized", "dispensed_outside_validity"}, score: 60, band: "high", approvable: false},
		{name: "capped", args: []string{"prescription_missing", "prescription_expired", "quantity_exceeded", "doctor_unauthorized"}, score: 100, band: "high", approvable: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"score"}, tc.args...)...)
			require.NoError(t, err)
			var got struct {
				Score      int      `json:"score"`
				Band       string   `json:"band"`
				Failed     []string `json:"failedChecks"`
				Approvable bool     `json:"approvableByScore"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tc.score, got.Score)
			assert.Equal(t, tc.band, got.Band)
			assert.Equal(t, tc.approvable, got.Approvable)
			assert.Len(t, got.Failed, len(tc.args))
		})
	}
}

func TestScoreRejectsUnknownCheck(t *testing.T) {
	_, err := execute(t, "score", "made_up")
	require.Error(t, err)
}
