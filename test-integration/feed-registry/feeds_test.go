package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/feed-registry-server/internal/api/v1"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/test-integration/feed-registry/helpers"
)

var _ = Describe("Feed listing", Label("filtering"), func() {
	var (
		tempDir      string
		aggregator   *helpers.MockAggregator
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("feeds-test-")
		aggregator = helpers.NewMockAggregator(8, "multi")
		aggregator.AddRound(1, 100, 1_700_000_001)

		configFile := helpers.WriteConfigYAML(tempDir, &config.Config{
			Owner: owner,
			Sources: []config.SourceConfig{
				helpers.NewSourceConfig("0xa", aggregator.URL),
				helpers.NewSourceConfig("0xb", aggregator.URL),
			},
		})
		serverHelper = helpers.NewServerTestHelper(ctx, configFile, helpers.FreePort())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)

		for _, feed := range []struct{ path, source string }{
			{"/v1/feeds/ETH/USD", "0xa"},
			{"/v1/feeds/ETH/EUR", "0xa"},
			{"/v1/feeds/BTC/USD", "0xb"},
		} {
			serverHelper.PostJSON(feed.path+"/propose", owner, v1.SourceRequest{Source: feed.source}, http.StatusAccepted, nil)
			serverHelper.PostJSON(feed.path+"/confirm", owner, v1.SourceRequest{Source: feed.source}, http.StatusOK, nil)
		}
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		aggregator.Close()
		cleanupTempDir(tempDir)
	})

	list := func(query string) []string {
		var resp v1.FeedListResponse
		serverHelper.GetJSON("/v1/feeds"+query, "", http.StatusOK, &resp)
		pairs := make([]string, 0, len(resp.Feeds))
		for _, f := range resp.Feeds {
			pairs = append(pairs, f.Base+"/"+f.Quote)
		}
		Expect(resp.Total).To(Equal(len(pairs)))
		return pairs
	}

	It("should list every confirmed feed", func() {
		Expect(list("")).To(Equal([]string{"BTC/USD", "ETH/EUR", "ETH/USD"}))
	})

	It("should filter by pair pattern and source", func() {
		Expect(list("?include=ETH/*")).To(Equal([]string{"ETH/EUR", "ETH/USD"}))
		Expect(list("?include=*/USD&exclude=BTC/*")).To(Equal([]string{"ETH/USD"}))
		Expect(list("?source=0xb")).To(Equal([]string{"BTC/USD"}))
		Expect(list("?exclude_source=0xa")).To(Equal([]string{"BTC/USD"}))
	})

	It("should reject malformed patterns", func() {
		resp, err := serverHelper.Get("/v1/feeds?include=%5BETH", "")
		Expect(err).NotTo(HaveOccurred())
		helpers.ExpectJSON(resp, http.StatusBadRequest, nil)
	})
})
