package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	"github.com/stacklok/feed-registry-server/internal/api/common"
	registryapp "github.com/stacklok/feed-registry-server/internal/app"
	"github.com/stacklok/feed-registry-server/internal/config"
)

// ServerTestHelper manages the feed registry server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *registryapp.RegistryApp
	port       int
}

// NewServerTestHelper creates a new server test helper
func NewServerTestHelper(ctx context.Context, configPath string, port int) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		port: port,
	}
}

// StartServer starts the feed registry server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := registryapp.NewRegistryApp(s.ctx,
		registryapp.WithConfig(cfg),
		registryapp.WithAddress(fmt.Sprintf("127.0.0.1:%d", s.port)),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the feed registry server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server not ready, status: %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed())
}

// Get issues a GET as caller. An empty caller is anonymous.
func (s *ServerTestHelper) Get(path, caller string) (*http.Response, error) {
	return s.do(http.MethodGet, path, caller, nil)
}

// Post issues a POST of body encoded as JSON as caller.
func (s *ServerTestHelper) Post(path, caller string, body any) (*http.Response, error) {
	return s.do(http.MethodPost, path, caller, body)
}

func (s *ServerTestHelper) do(method, path, caller string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(common.CallerHeader, caller)
	}
	return s.httpClient.Do(req)
}

// GetJSON issues a GET as caller, expects status and decodes the body into out.
func (s *ServerTestHelper) GetJSON(path, caller string, status int, out any) {
	resp, err := s.Get(path, caller)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	ExpectJSON(resp, status, out)
}

// PostJSON issues a POST as caller, expects status and decodes the body into out
// when out is not nil.
func (s *ServerTestHelper) PostJSON(path, caller string, body any, status int, out any) {
	resp, err := s.Post(path, caller, body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	ExpectJSON(resp, status, out)
}

// ExpectJSON checks the status of resp and decodes its body into out.
func ExpectJSON(resp *http.Response, status int, out any) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(resp.StatusCode).To(gomega.Equal(status), string(body))
	if out != nil {
		gomega.Expect(json.Unmarshal(body, out)).To(gomega.Succeed())
	}
}
