package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/stacklok/feed-registry-server/internal/api/v1"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/test-integration/feed-registry/helpers"
)

const (
	owner    = "0xowner"
	consumer = "0xconsumer"

	// 1<<64 and 2<<64 offsets of phases 1 and 2.
	phase1Round3  = "18446744073709551619"
	phase1Round4  = "18446744073709551620"
	phase1Round5  = "18446744073709551621"
	phase2Round10 = "36893488147419103242"
)

var _ = Describe("Source transitions", Label("transition"), func() {
	var (
		tempDir      string
		aggregatorA  *helpers.MockAggregator
		aggregatorB  *helpers.MockAggregator
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("transition-test-")

		aggregatorA = helpers.NewMockAggregator(8, "ETH / USD")
		aggregatorA.AddRound(3, 300000, 1_700_000_003)
		aggregatorB = helpers.NewMockAggregator(8, "ETH / USD v2")
		aggregatorB.AddRound(10, 310000, 1_700_000_100)

		configFile := helpers.WriteConfigYAML(tempDir, &config.Config{
			Owner: owner,
			Sources: []config.SourceConfig{
				helpers.NewSourceConfig("0xa", aggregatorA.URL),
				helpers.NewSourceConfig("0xb", aggregatorB.URL),
			},
		})

		serverHelper = helpers.NewServerTestHelper(ctx, configFile, helpers.FreePort())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		aggregatorA.Close()
		aggregatorB.Close()
		cleanupTempDir(tempDir)
	})

	confirm := func(src string, wantPhase uint64) {
		serverHelper.PostJSON("/v1/feeds/ETH/USD/propose", owner, v1.SourceRequest{Source: src}, http.StatusAccepted, nil)
		var confirmed v1.ConfirmResponse
		serverHelper.PostJSON("/v1/feeds/ETH/USD/confirm", owner, v1.SourceRequest{Source: src}, http.StatusOK, &confirmed)
		Expect(confirmed.PhaseID).To(Equal(wantPhase))
	}

	It("should reject transitions from anyone but the owner", func() {
		resp, err := serverHelper.Post("/v1/feeds/ETH/USD/propose", consumer, v1.SourceRequest{Source: "0xa"})
		Expect(err).NotTo(HaveOccurred())
		helpers.ExpectJSON(resp, http.StatusUnauthorized, nil)

		resp, err = serverHelper.Post("/v1/feeds/ETH/USD/propose", owner, v1.SourceRequest{Source: "0xunknown"})
		Expect(err).NotTo(HaveOccurred())
		helpers.ExpectJSON(resp, http.StatusNotFound, nil)
	})

	It("should serve global round ids from the configured source", func() {
		confirm("0xa", 1)

		var latest v1.RoundDataResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/latest/round-data", consumer, http.StatusOK, &latest)
		Expect(latest.RoundID).To(Equal(phase1Round3))
		Expect(latest.AnsweredInRound).To(Equal(phase1Round3))
		Expect(latest.Answer).To(Equal("300000"))

		var description v1.DescriptionResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/description", consumer, http.StatusOK, &description)
		Expect(description.Description).To(Equal("ETH / USD"))
	})

	It("should keep historical rounds addressable across a source change", func() {
		confirm("0xa", 1)
		aggregatorA.AddRound(4, 301000, 1_700_000_004)
		aggregatorA.AddRound(5, 302000, 1_700_000_005)

		By("proposing the replacement source and reading it before confirmation")
		serverHelper.PostJSON("/v1/feeds/ETH/USD/propose", owner, v1.SourceRequest{Source: "0xb"}, http.StatusAccepted, nil)
		var proposed v1.RoundDataResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/proposed/round-data", consumer, http.StatusOK, &proposed)
		Expect(proposed.RoundID).To(Equal("10"))

		By("confirming the replacement")
		var confirmed v1.ConfirmResponse
		serverHelper.PostJSON("/v1/feeds/ETH/USD/confirm", owner, v1.SourceRequest{Source: "0xb"}, http.StatusOK, &confirmed)
		Expect(confirmed.PhaseID).To(Equal(uint64(2)))

		var phase v1.PhaseResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/phases/1", "", http.StatusOK, &phase)
		Expect(phase).To(Equal(v1.PhaseResponse{ID: 1, Source: "0xa", StartingRound: 3, EndingRound: 5}))

		var latest v1.RoundDataResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/latest/round-data", consumer, http.StatusOK, &latest)
		Expect(latest.RoundID).To(Equal(phase2Round10))
		Expect(latest.Answer).To(Equal("310000"))

		By("reading a round of the previous phase")
		var historical v1.RoundDataResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/rounds/"+phase1Round4+"/round-data", consumer, http.StatusOK, &historical)
		Expect(historical.RoundID).To(Equal(phase1Round4))
		Expect(historical.Answer).To(Equal("301000"))

		var src v1.SourceResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/rounds/"+phase1Round4+"/source", "", http.StatusOK, &src)
		Expect(src.Source).To(Equal("0xa"))

		By("navigating across the phase boundary")
		var round v1.RoundResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/rounds/"+phase2Round10+"/previous", "", http.StatusOK, &round)
		Expect(round.RoundID).To(Equal(phase1Round5))

		serverHelper.GetJSON("/v1/feeds/ETH/USD/rounds/"+phase1Round5+"/next", "", http.StatusOK, &round)
		Expect(round.RoundID).To(Equal(phase2Round10))

		serverHelper.GetJSON("/v1/feeds/ETH/USD/rounds/"+phase2Round10+"/next", "", http.StatusOK, &round)
		Expect(round.RoundID).To(Equal("0"))

		By("reporting which sources are enabled")
		var enabled v1.EnabledResponse
		serverHelper.GetJSON("/v1/sources/0xa/enabled", "", http.StatusOK, &enabled)
		Expect(enabled.Enabled).To(BeFalse())
		serverHelper.GetJSON("/v1/sources/0xb/enabled", "", http.StatusOK, &enabled)
		Expect(enabled.Enabled).To(BeTrue())

		By("recording every transition in the event log")
		var page v1.EventsResponse
		serverHelper.GetJSON("/v1/events?since=0", "", http.StatusOK, &page)
		types := make([]string, 0, len(page.Events))
		for _, e := range page.Events {
			types = append(types, string(e.Type))
		}
		Expect(types).To(Equal([]string{
			string(events.TypeSourceProposed),
			string(events.TypeSourceConfirmed),
			string(events.TypeSourceProposed),
			string(events.TypeSourceConfirmed),
		}))
	})

	It("should serve the phase range of a frozen phase", func() {
		confirm("0xa", 1)
		aggregatorA.AddRound(5, 302000, 1_700_000_005)
		confirm("0xb", 2)

		var rng v1.PhaseRangeResponse
		serverHelper.GetJSON("/v1/feeds/ETH/USD/phases/1/range", "", http.StatusOK, &rng)
		Expect(rng).To(Equal(v1.PhaseRangeResponse{StartingRoundID: phase1Round3, EndingRoundID: phase1Round5}))
	})
})
