package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const credentialsFileName = "credentials.json"

// Config holds the options shared by every subcommand. It is built once from
// the command line and passed explicitly to each operation.
type Config struct {
	CredentialsPath   string
	InputFile         string
	OutputFile        string
	BOM               bool
	JournalPath       string
	RequestsPerSecond float64
	PageSize          int
	Verbose           bool
}

// Credential identifies the app registration used for the client-credential flow.
type Credential struct {
	TenantID     string `json:"tenantId"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// String never prints the secret.
func (c Credential) String() string {
	return fmt.Sprintf("tenant=%s client=%s secret=***REDACTED***", c.TenantID, c.ClientID)
}

// defaultCredentialsPath points at credentials.json next to the executable.
func defaultCredentialsPath() string {
	exe, err := os.Executable()
	if err != nil {
		return credentialsFileName
	}
	return filepath.Join(filepath.Dir(exe), credentialsFileName)
}

// LoadCredential reads the tenant, client and secret from a JSON file.
// TENANT_ID, CLIENT_ID and CLIENT_SECRET override the file values when set.
func LoadCredential(path string) (Credential, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Credential{}, fmt.Errorf("credential file %s does not exist", path)
	} else if err != nil {
		return Credential{}, fmt.Errorf("could not stat credential file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Credential{}, fmt.Errorf("error parsing credential file %s: %w", path, err)
	}

	envKeys := map[string]string{
		"tenantId":     "TENANT_ID",
		"clientId":     "CLIENT_ID",
		"clientSecret": "CLIENT_SECRET",
	}
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Credential{}, fmt.Errorf("could not bind %s: %w", env, err)
		}
	}

	cred := Credential{
		TenantID:     v.GetString("tenantId"),
		ClientID:     v.GetString("clientId"),
		ClientSecret: v.GetString("clientSecret"),
	}
	if cred.TenantID == "" {
		return Credential{}, fmt.Errorf("tenantId must be set in %s or via TENANT_ID", path)
	}
	if cred.ClientID == "" {
		return Credential{}, fmt.Errorf("clientId must be set in %s or via CLIENT_ID", path)
	}
	if cred.ClientSecret == "" {
		return Credential{}, fmt.Errorf("clientSecret must be set in %s or via CLIENT_SECRET", path)
	}
	return cred, nil
}

// Validate checks option ranges before any network work starts.
func (c Config) Validate() error {
	if c.PageSize > 999 || c.PageSize < 1 {
		return fmt.Errorf("page-size must be between 1 and 999")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("rate must not be negative")
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("credentials path must not be empty")
	}
	return nil
}
