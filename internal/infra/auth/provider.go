// internal/infra/auth/provider.go
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

var ErrNoToken = fmt.Errorf("no access token available")

// StaticProvider hands out a fixed token, e.g. one passed in through the environment.
type StaticProvider struct {
	token string
}

func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: strings.TrimSpace(token)}
}

func (p *StaticProvider) Token(context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNoToken
	}
	return p.token, nil
}

// FileProvider re-reads a token file on every call, so an external login
// helper can rotate the token without restarting the process.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Token(context.Context) (string, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", p.path, err)
	}
	token := strings.TrimSpace(string(raw))
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("%w: token file %s is empty", ErrNoToken, p.path)
	}
	return token, nil
}

// Refresh is the same as Token: the file is the source of truth.
func (p *FileProvider) Refresh(ctx context.Context) (string, error) {
	return p.Token(ctx)
}
