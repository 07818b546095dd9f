package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/feed-registry-server/internal/api/v1"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/test-integration/feed-registry/helpers"
)

var _ = Describe("Read access", Label("access"), func() {
	var (
		tempDir      string
		aggregator   *helpers.MockAggregator
		serverHelper *helpers.ServerTestHelper
	)

	start := func(access *config.AccessConfig) {
		configFile := helpers.WriteConfigYAML(tempDir, &config.Config{
			Owner:   owner,
			Sources: []config.SourceConfig{helpers.NewSourceConfig("0xa", aggregator.URL)},
			Access:  access,
		})
		serverHelper = helpers.NewServerTestHelper(ctx, configFile, helpers.FreePort())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)

		serverHelper.PostJSON("/v1/feeds/ETH/USD/propose", owner, v1.SourceRequest{Source: "0xa"}, http.StatusAccepted, nil)
		serverHelper.PostJSON("/v1/feeds/ETH/USD/confirm", owner, v1.SourceRequest{Source: "0xa"}, http.StatusOK, nil)
	}

	expectAnswer := func(caller string, status int) {
		resp, err := serverHelper.Get("/v1/feeds/ETH/USD/latest/answer", caller)
		Expect(err).NotTo(HaveOccurred())
		helpers.ExpectJSON(resp, status, nil)
	}

	BeforeEach(func() {
		tempDir = createTempDir("access-test-")
		aggregator = helpers.NewMockAggregator(8, "ETH / USD")
		aggregator.AddRound(1, 300000, 1_700_000_001)
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
		}
		aggregator.Close()
		cleanupTempDir(tempDir)
	})

	Context("with the grants policy", func() {
		BeforeEach(func() {
			start(&config.AccessConfig{
				Policy:       config.AccessPolicyGrants,
				GlobalGrants: []string{"0xindexer"},
			})
		})

		It("should gate reads until the owner grants access", func() {
			expectAnswer("0xindexer", http.StatusOK)
			expectAnswer(owner, http.StatusOK)
			expectAnswer(consumer, http.StatusForbidden)

			serverHelper.PostJSON("/v1/access/local", owner,
				v1.GrantRequest{Caller: consumer, Base: "ETH", Quote: "USD"}, http.StatusNoContent, nil)
			expectAnswer(consumer, http.StatusOK)

			var check v1.HasAccessResponse
			serverHelper.GetJSON("/v1/access/has-access?caller="+consumer+"&base=ETH&quote=USD", "", http.StatusOK, &check)
			Expect(check.HasAccess).To(BeTrue())
		})

		It("should open reads when checking is disabled", func() {
			serverHelper.PostJSON("/v1/access/check", owner, v1.CheckRequest{Enabled: false}, http.StatusOK, nil)
			expectAnswer(consumer, http.StatusOK)
		})

		It("should let the owner remove the policy", func() {
			serverHelper.PostJSON("/v1/access/policy", owner, v1.PolicyRequest{Policy: ""}, http.StatusOK, nil)
			expectAnswer(consumer, http.StatusOK)
		})
	})

	Context("with a watched Cedar policy", func() {
		var policyFile string

		BeforeEach(func() {
			policyFile = filepath.Join(tempDir, "policies.cedar")
			Expect(os.WriteFile(policyFile, []byte(`permit (
  principal == FeedRegistry::Caller::"0xindexer",
  action == FeedRegistry::Action::"read",
  resource
);`), 0600)).To(Succeed())

			start(&config.AccessConfig{
				Policy:          config.AccessPolicyCedar,
				CedarPolicyFile: policyFile,
				WatchPolicyFile: true,
			})
		})

		It("should apply policy file updates without a restart", func() {
			expectAnswer("0xindexer", http.StatusOK)
			expectAnswer(consumer, http.StatusForbidden)

			Expect(os.WriteFile(policyFile, []byte(`permit (
  principal,
  action == FeedRegistry::Action::"read",
  resource
) when { resource.quote == "USD" };`), 0600)).To(Succeed())

			Eventually(func() int {
				resp, err := serverHelper.Get("/v1/feeds/ETH/USD/latest/answer", consumer)
				if err != nil {
					return 0
				}
				_ = resp.Body.Close()
				return resp.StatusCode
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(http.StatusOK))
		})
	})
})
