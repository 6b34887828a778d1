package session

import "testing"

// TestLoginProof checks the challenge-response computation against known
// values. These must match the appliance's expectation exactly or login
// fails with invalid_token.
func TestLoginProof(t *testing.T) {
	tests := []struct {
		name      string
		appToken  string
		challenge string
		want      string
	}{
		{
			name:      "typical values",
			appToken:  "s3cr3t",
			challenge: "abc123",
			want:      "7784b8caedec4155eea1f31953737acaa133b5cf",
		},
		{
			name:      "empty token and challenge",
			appToken:  "",
			challenge: "",
			want:      "fbdb1d1b18aa6c08324b7d64b71fb76370690e1d",
		},
		{
			name:      "realistic token and nonce",
			appToken:  "app-token-xyz",
			challenge: "nonce-42",
			want:      "10b82801ccc160d3ae609f24e191233fd1e2e42f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LoginProof(tt.appToken, tt.challenge)
			if got != tt.want {
				t.Errorf("LoginProof(%q, %q) = %q, want %q", tt.appToken, tt.challenge, got, tt.want)
			}
		})
	}
}

// TestLoginProofDeterministic verifies repeated computation yields the
// same proof (no hidden state in the helper).
func TestLoginProofDeterministic(t *testing.T) {
	a := LoginProof("token", "challenge")
	b := LoginProof("token", "challenge")
	if a != b {
		t.Errorf("proof not deterministic: %q != %q", a, b)
	}
}
