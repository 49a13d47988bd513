package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/test/secrets/stripe_api_key/versions/latest"
	client.values[resource] = "remote-secret"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("ResolveSecret call %d returned error: %v", i, err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveHonoursVersionAndProjectOverrides(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/other/secrets/jwt_secret/versions/3"
	client.values[resource] = "pinned"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.ResolveSecret(ctx, "secret://jwt_secret?version=3&project=other")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()

	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	content := "# local overrides\nsecret://stripe_api_key=local-secret\nsm://admin_password = hunter2\n"
	if err := os.WriteFile(fallbackPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	client := newFakeSecretClient()
	client.errors["projects/test/secrets/stripe_api_key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")
	client.errors["projects/test/secrets/admin_password/versions/latest"] = status.Error(codes.Unavailable, "down")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.ResolveSecret(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected local-secret, got %s", got)
	}

	got, err = fetcher.ResolveSecret(ctx, "secret://admin_password")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("expected hunter2, got %s", got)
	}
}

func TestResolveWithoutProjectUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()

	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("secret://webhook_secret=whsec_local\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.ResolveSecret(ctx, "secret://webhook_secret")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "whsec_local" {
		t.Fatalf("expected whsec_local, got %s", got)
	}

	if _, err := fetcher.ResolveSecret(ctx, "secret://missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestResolveDoesNotFallBackOnInvalidArgument(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.errors["projects/test/secrets/broken/versions/latest"] = status.Error(codes.InvalidArgument, "bad")

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	_, err = fetcher.ResolveSecret(ctx, "secret://broken")
	if err == nil {
		t.Fatalf("expected error")
	}
	if status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
		t.Fatalf("expected wrapped InvalidArgument, got %v", err)
	}
}

func TestParseReference(t *testing.T) {
	ref, err := parseReference("secret://payments/stripe?version=7")
	if err != nil {
		t.Fatalf("parseReference returned error: %v", err)
	}
	if ref.name != "payments-stripe" || ref.version != "7" || ref.canonical != "secret://payments/stripe" {
		t.Fatalf("unexpected reference %#v", ref)
	}

	for _, raw := range []string{"https://example.com/secret", "secret://", "::"} {
		if _, err := parseReference(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errors map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values: make(map[string]string),
		errors: make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errors[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}
