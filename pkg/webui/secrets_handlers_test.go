package webui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"promptarchitect/pkg/config"
)

func TestSecretsSetListDelete(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	config.SetDecryptedSecrets(nil)
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	w := post(s, "/api/secrets", `{"name":"OPENAI_API_KEY","value":"sk-test"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var setResp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&setResp); err != nil {
		t.Fatal(err)
	}
	if setResp["persisted"] != false {
		t.Errorf("Expected in-memory only without a project password, got %v", setResp["persisted"])
	}
	if v, _ := config.GetSecret("OPENAI_API_KEY"); v != "sk-test" {
		t.Errorf("Expected secret stored in memory, got %q", v)
	}

	post(s, "/api/secrets", `{"name":"CUSTOM_TOKEN","value":"x"}`)

	var entries []SecretEntry
	if err := json.NewDecoder(get(s, "/api/secrets").Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 secrets, got %+v", entries)
	}
	if entries[0].Name != "CUSTOM_TOKEN" || entries[0].Provider != "" {
		t.Errorf("Unexpected first entry %+v", entries[0])
	}
	if entries[1].Name != "OPENAI_API_KEY" || entries[1].Provider != config.ProviderOpenAI {
		t.Errorf("Unexpected second entry %+v", entries[1])
	}
	if strings.Contains(get(s, "/api/secrets").Body.String(), "sk-test") {
		t.Error("Secret values must never be listed")
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/secrets/CUSTOM_TOKEN", nil)
	if w := serve(s, req); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for delete, got %d", w.Code)
	}
	if names := config.GetDecryptedSecretNames(); len(names) != 1 || names[0] != "OPENAI_API_KEY" {
		t.Errorf("Unexpected names after delete: %v", names)
	}
}

func TestSecretsSetValidation(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	config.SetDecryptedSecrets(nil)
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing value", `{"name":"A"}`},
		{"bad name", `{"name":"bad-name","value":"v"}`},
		{"empty name", `{"name":"","value":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := post(s, "/api/secrets", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPut, "/api/secrets", nil)
	if w := serve(s, req); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestSecretsPersistWithProjectPassword(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	config.SetDecryptedSecrets(nil)
	config.SetProjectPassword("pw")
	t.Cleanup(func() {
		config.SetDecryptedSecrets(nil)
		config.SetProjectPassword("")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/secrets", strings.NewReader(`{"name":"ANTHROPIC_API_KEY","value":"sk-ant"}`))
	req.SetBasicAuth(authUsername, "pw")
	w := serve(s, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !config.SecretsFileExists(s.projectDir) {
		t.Fatal("Expected encrypted secrets file to be written")
	}

	decrypted, err := config.DecryptSecretsFile(s.projectDir, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if decrypted["ANTHROPIC_API_KEY"] != "sk-ant" {
		t.Errorf("Unexpected persisted secrets %v", decrypted)
	}
}
