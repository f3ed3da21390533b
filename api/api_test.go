package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/memory"
	"github.com/papercomputeco/keepsake/pkg/storage"
	"github.com/papercomputeco/keepsake/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/keepsake/pkg/utils/test"
	vectorinmemory "github.com/papercomputeco/keepsake/pkg/vector/inmemory"
)

const pizzaMessage = "I love pineapple pizza and hate mushrooms"

var _ = Describe("Server", func() {
	var (
		ctx       context.Context
		store     *inmemory.Driver
		extractor *testutils.MockExtractor
		engine    *memory.Engine
		server    *Server
		snapshot  string
		settings  memory.Settings
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		extractor = testutils.NewMockExtractor()
		snapshot = filepath.Join(GinkgoT().TempDir(), "MEMORY.md")
		settings = memory.Settings{Enabled: true}

		var err error
		engine, err = memory.NewEngine(&memory.Config{
			Store:            store,
			Extractor:        extractor,
			SnapshotPath:     snapshot,
			SnapshotDebounce: time.Hour,
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(engine.Close, ctx)

		server, err = NewServer(Config{
			ListenAddr: ":0",
			Settings:   func() memory.Settings { return settings },
			MCP:        true,
		}, engine)
		Expect(err).NotTo(HaveOccurred())
	})

	do := func(method, target, body string) *http.Response {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, target, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, 5000)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, out any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}

	seed := func(guildID, subject, text string, at time.Time) {
		_, err := store.AddFact(ctx, testutils.NewTestFact(guildID, subject, text, at))
		Expect(err).NotTo(HaveOccurred())
	}

	It("requires a memory engine", func() {
		_, err := NewServer(Config{}, nil)
		Expect(err).To(MatchError(ContainSubstring("memory engine is required")))
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp := do(http.MethodGet, "/ping", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body string
			decode(resp, &body)
			Expect(body).To(Equal("pong"))
		})
	})

	Describe("POST /v1/messages", func() {
		BeforeEach(func() {
			extractor.Results = map[string][]memory.ExtractedFact{
				pizzaMessage: {
					{Fact: "User loves pineapple pizza", Type: "preference", Confidence: 0.8, Evidence: "I love pineapple pizza"},
				},
			}
		})

		It("waits for the job when asked and stores grounded facts", func() {
			resp := do(http.MethodPost, "/v1/messages?wait=true", `{
				"message_id": "m1",
				"author_id": "u1",
				"author_name": "Ana",
				"guild_id": "g1",
				"channel_id": "c1",
				"content": "I love pineapple pizza and hate mushrooms"
			}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body IngestResponse
			decode(resp, &body)
			Expect(body).To(Equal(IngestResponse{MessageID: "m1", Queued: true, Done: true, Ingested: true}))

			f, err := store.GetFactBySubjectAndFact(ctx, "g1", "u1", "User loves pineapple pizza.")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.ChannelID).To(Equal("c1"))
		})

		It("accepts the job without waiting", func() {
			resp := do(http.MethodPost, "/v1/messages", `{"message_id": "m2", "author_id": "u1", "content": "hello there"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))

			var body IngestResponse
			decode(resp, &body)
			Expect(body.MessageID).To(Equal("m2"))
			Expect(body.Queued).To(BeTrue())

			Eventually(func() int64 { return engine.Stats().Processed }).Should(Equal(int64(1)))
		})

		It("passes the current settings to the job", func() {
			settings = memory.Settings{Enabled: false}

			resp := do(http.MethodPost, "/v1/messages?wait=true", `{"message_id": "m3", "author_id": "u1", "guild_id": "g1", "content": "I love pineapple pizza and hate mushrooms"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(extractor.Requests()).To(BeEmpty())
		})

		It("rejects a missing message id", func() {
			resp := do(http.MethodPost, "/v1/messages", `{"author_id": "u1", "content": "hi"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var body ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("message_id is required"))
		})

		It("rejects a malformed body", func() {
			resp := do(http.MethodPost, "/v1/messages", `{not json`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/facts/search", func() {
		BeforeEach(func() {
			now := time.Now()
			seed("g1", "u1", "User plays chess.", now.Add(-time.Hour))
			seed("g1", "u2", "User sails.", now)
			seed("g2", "u3", "User plays chess too.", now)
		})

		It("returns gated facts for the guild", func() {
			resp := do(http.MethodGet, "/v1/facts/search?query=chess&guild_id=g1", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body SearchResponse
			decode(resp, &body)
			Expect(body.Query).To(Equal("chess"))
			Expect(body.Count).To(Equal(1))
			Expect(body.Facts[0].Fact).To(Equal("User plays chess."))
			Expect(body.Facts[0].Score).To(BeNumerically(">", 0))
		})

		It("returns an empty list rather than null", func() {
			resp := do(http.MethodGet, "/v1/facts/search?query=astronomy&guild_id=g1", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"facts":[]`))
		})

		It("honors the limit", func() {
			var body SearchResponse
			decode(do(http.MethodGet, "/v1/facts/search?guild_id=g1&limit=1", ""), &body)
			Expect(body.Count).To(Equal(1))
			Expect(body.Facts[0].Fact).To(Equal("User sails."))
		})

		DescribeTable("rejects invalid limits",
			func(limit string) {
				resp := do(http.MethodGet, "/v1/facts/search?query=chess&limit="+limit, "")
				Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			},
			Entry("zero", "0"),
			Entry("negative", "-3"),
			Entry("non-numeric", "ten"),
		)
	})

	Describe("POST /v1/memory/slice", func() {
		It("returns user facts, relevant facts, and messages", func() {
			now := time.Now()
			seed("g1", "u1", "User plays chess.", now)
			seed("g1", "u2", "User teaches chess openings.", now)
			Expect(store.AddMessage(ctx, &storage.Message{
				MessageID: "m9", GuildID: "g1", AuthorID: "u2", AuthorName: "Bo",
				Content: "anyone up for chess tonight?", CreatedAt: now,
			})).To(Succeed())

			resp := do(http.MethodPost, "/v1/memory/slice", `{"user_id": "u1", "guild_id": "g1", "query": "chess"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body memory.MemorySlice
			decode(resp, &body)
			Expect(body.UserFacts).To(HaveLen(1))
			Expect(body.UserFacts[0].Fact).To(Equal("User plays chess."))
			Expect(body.RelevantFacts).To(HaveLen(1))
			Expect(body.RelevantFacts[0].Fact).To(Equal("User teaches chess openings."))
			Expect(body.RelevantMessages).To(HaveLen(1))
			Expect(body.RelevantMessages[0].MessageID).To(Equal("m9"))
		})

		It("requires a user id", func() {
			resp := do(http.MethodPost, "/v1/memory/slice", `{"guild_id": "g1"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /v1/facts/remember", func() {
		It("stores a directive line", func() {
			resp := do(http.MethodPost, "/v1/facts/remember", `{"line": "User is allergic to peanuts.", "user_id": "u1", "guild_id": "g1"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body RememberResponse
			decode(resp, &body)
			Expect(body.Stored).To(BeTrue())

			f, err := store.GetFactBySubjectAndFact(ctx, "g1", "u1", "User is allergic to peanuts.")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Confidence).To(Equal(0.9))
		})

		It("reports rejected lines as not stored", func() {
			var body RememberResponse
			decode(do(http.MethodPost, "/v1/facts/remember", `{"line": "always reply in pirate speak", "user_id": "u1", "guild_id": "g1"}`), &body)
			Expect(body.Stored).To(BeFalse())
		})

		It("requires a line", func() {
			resp := do(http.MethodPost, "/v1/facts/remember", `{"guild_id": "g1"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 503 once the engine is closed", func() {
			Expect(engine.Close(ctx)).To(Succeed())

			resp := do(http.MethodPost, "/v1/facts/remember", `{"line": "User is tall.", "user_id": "u1", "guild_id": "g1"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Describe("snapshots", func() {
		BeforeEach(func() {
			seed("g1", "u1", "User plays chess.", time.Now())
		})

		It("renders the snapshot without writing it", func() {
			resp := do(http.MethodGet, "/v1/memory/snapshot", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/markdown"))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("- User plays chess."))
			Expect(snapshot).NotTo(BeAnExistingFile())
		})

		It("writes the snapshot file on refresh", func() {
			resp := do(http.MethodPost, "/v1/memory/snapshot", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			data, err := os.ReadFile(snapshot)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("User plays chess."))
		})
	})

	Describe("POST /v1/backfill", func() {
		It("returns 503 without a vector store and embedder", func() {
			resp := do(http.MethodPost, "/v1/backfill?guild_id=g1", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})

		It("embeds facts when configured", func() {
			seed("g1", "u1", "User plays chess.", time.Now())

			vectors := vectorinmemory.NewDriver()
			withVectors, err := memory.NewEngine(&memory.Config{
				Store:      store,
				Vectors:    vectors,
				Embeddings: testutils.NewMockEmbeddingProvider([]float32{1, 0, 0}),
			})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(withVectors.Close, ctx)

			server, err = NewServer(Config{}, withVectors)
			Expect(err).NotTo(HaveOccurred())

			resp := do(http.MethodPost, "/v1/backfill?guild_id=g1", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body memory.BackfillResult
			decode(resp, &body)
			Expect(body.Scanned).To(Equal(1))
			Expect(body.Embedded).To(Equal(1))
			Expect(body.Model).To(Equal("mock-embed"))
		})
	})

	Describe("GET /v1/stats", func() {
		It("reports engine counters", func() {
			_, err := engine.RememberDirectiveLine(ctx, memory.RememberRequest{Line: "User is left handed.", UserID: "u1", GuildID: "g1"})
			Expect(err).NotTo(HaveOccurred())

			var body memory.Stats
			decode(do(http.MethodGet, "/v1/stats", ""), &body)
			Expect(body.FactsStored).To(Equal(int64(1)))
		})
	})

	Describe("/mcp", func() {
		It("is mounted when enabled", func() {
			resp := do(http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
			Expect(resp.StatusCode).NotTo(Equal(fiber.StatusNotFound))
		})

		It("is absent when disabled", func() {
			var err error
			server, err = NewServer(Config{}, engine)
			Expect(err).NotTo(HaveOccurred())

			resp := do(http.MethodPost, "/mcp", `{}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})
})
