package webui

import (
	"encoding/json"
	"net/http"
	"strings"

	"promptarchitect/pkg/config"
)

// SecretEntry represents a secret for the API response (name only, no value).
type SecretEntry struct {
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}

// providerForSecret names the model provider a credential belongs to, if any.
func providerForSecret(name string) string {
	switch name {
	case config.EnvGeminiAPIKey, config.EnvGoogleAPIKey, config.EnvGenericAPIKey:
		return config.ProviderGoogle
	case config.EnvAnthropicAPIKey:
		return config.ProviderAnthropic
	case config.EnvOpenAIAPIKey:
		return config.ProviderOpenAI
	case config.EnvOllamaHost:
		return config.ProviderOllama
	}
	return ""
}

// handleSecretsList implements GET /api/secrets.
// Returns secret names only, sorted.
func (s *Server) handleSecretsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := config.GetDecryptedSecretNames()
	entries := make([]SecretEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, SecretEntry{Name: name, Provider: providerForSecret(name)})
	}

	s.writeJSON(w, http.StatusOK, entries)
	s.logger.Debug("Served secrets list: %d secrets", len(entries))
}

// handleSecretsSet implements POST /api/secrets.
// The value is kept in memory and persisted to the encrypted file when a project password is set.
func (s *Server) handleSecretsSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if reqBody.Value == "" {
		http.Error(w, "Secret value is required", http.StatusBadRequest)
		return
	}
	if !config.ValidSecretName(reqBody.Name) {
		http.Error(w, "Secret name must contain only alphanumeric characters and underscores", http.StatusBadRequest)
		return
	}

	config.SetSecret(reqBody.Name, reqBody.Value)
	persisted := s.persistSecrets()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"name":      reqBody.Name,
		"persisted": persisted,
	})
	s.logger.Info("Secret %q set", reqBody.Name)
}

// handleSecretsDelete implements DELETE /api/secrets/{name}.
func (s *Server) handleSecretsDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/secrets/")
	if !config.ValidSecretName(name) {
		http.Error(w, "Secret name required", http.StatusBadRequest)
		return
	}

	config.DeleteSecret(name)
	persisted := s.persistSecrets()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"name":      name,
		"persisted": persisted,
	})
	s.logger.Info("Secret %q deleted", name)
}

// persistSecrets writes the in-memory secrets to the encrypted file.
// Without a project password the secrets stay in memory only.
func (s *Server) persistSecrets() bool {
	password := config.GetProjectPassword()
	if password == "" {
		s.logger.Warn("No project password set - secrets stored in memory only")
		return false
	}
	if err := config.SaveSecretsToFile(s.projectDir, password); err != nil {
		s.logger.Error("Failed to persist secrets to file: %v", err)
		return false
	}
	return true
}
