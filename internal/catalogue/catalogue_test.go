package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalogue(t *testing.T) {
	cases := Builtin()
	require.Len(t, cases, 5)

	for _, tc := range cases {
		assert.NotEmpty(t, tc.Name)
		assert.True(t, tc.Category.Valid(), "case %s has invalid category", tc.Name)
		assert.NotEmpty(t, tc.From)
		assert.NotEmpty(t, tc.To)
		assert.NotEmpty(t, tc.Subject)
		assert.NotEmpty(t, tc.Body)
	}

	// Threat content is part of the contract and must survive verbatim
	phishing := cases[2]
	assert.Equal(t, "Suspicious Phishing Email", phishing.Name)
	assert.Equal(t, CategoryPhishing, phishing.Category)
	assert.Equal(t, "security@bank-fake.com", phishing.From)
	assert.Equal(t, "customer@example.com", phishing.To)
	assert.Equal(t, "URGENT: Account Security Alert", phishing.Subject)
	assert.Contains(t, phishing.Body, "http://fake-bank-security.com/login")
}

func TestBuiltinCoversSpectrum(t *testing.T) {
	counts := make(map[Category]int)
	for _, tc := range Builtin() {
		counts[tc.Category]++
	}

	for _, cat := range Categories() {
		assert.Equal(t, 1, counts[cat], "expected exactly one %s case", cat)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalogue.toml")

	original := Builtin()
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadEmptyCatalogue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(path, []byte("# no cases here\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defines no cases")
}

func TestValidateBuiltin(t *testing.T) {
	result := Validate(Builtin())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateRejectsHeaderLineBreaks(t *testing.T) {
	cases := Builtin()
	cases[0].Subject = "Q4 Strategy\r\nBcc: attacker@evil.com"

	result := Validate(cases)
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "subject", result.Errors[0].Field)
}

func TestValidateRejectsUnknownCategory(t *testing.T) {
	cases := []TestCase{{
		Name:     "odd",
		Category: "spam",
		From:     "a@example.com",
		To:       "b@example.com",
		Subject:  "s",
		Body:     "b",
	}}

	result := Validate(cases)
	require.False(t, result.Valid)
	assert.Equal(t, "category", result.Errors[0].Field)
}

func TestValidateRejectsEmptyAddresses(t *testing.T) {
	cases := []TestCase{{Name: "hollow", Category: CategoryBenign, Subject: "s", Body: "b"}}

	result := Validate(cases)
	require.False(t, result.Valid)

	fields := make(map[string]bool)
	for _, issue := range result.Errors {
		fields[issue.Field] = true
	}
	assert.True(t, fields["from"])
	assert.True(t, fields["to"])
}

func TestValidateRejectsNULBytes(t *testing.T) {
	cases := Builtin()
	cases[1].Body = "hello\x00world"

	result := Validate(cases)
	assert.False(t, result.Valid)
}

func TestValidateWarnsOnNonNFCText(t *testing.T) {
	cases := Builtin()
	cases[0].Body = "meeting at cafe\u0301 tomorrow" // decomposed e + combining acute

	result := Validate(cases)
	assert.True(t, result.Valid, "normalization issues are warnings, not errors")
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "body", result.Warnings[0].Field)
}

func TestValidateWarnsOnDuplicateNames(t *testing.T) {
	cases := append(Builtin(), Builtin()[0])

	result := Validate(cases)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}
