package helpers

import (
	"net"
	"os"
	"path/filepath"

	"github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/feed-registry-server/internal/config"
)

// WriteConfigYAML writes cfg as config.yaml under dir and returns its path.
func WriteConfigYAML(dir string, cfg *config.Config) string {
	data, err := yaml.Marshal(cfg)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, data, 0600)).To(gomega.Succeed())
	return path
}

// NewSourceConfig maps address to the aggregator at endpoint.
func NewSourceConfig(address, endpoint string) config.SourceConfig {
	return config.SourceConfig{Address: address, Endpoint: endpoint, Timeout: "2s"}
}

// FreePort returns a TCP port that was free at the time of the call.
func FreePort() int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}
