package llm_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/keepsake/pkg/llm"
	"github.com/papercomputeco/keepsake/pkg/memory"
	"github.com/papercomputeco/keepsake/pkg/storage"
)

var _ = Describe("ParseExtraction", func() {
	It("parses facts wrapped in markdown fences", func() {
		facts, err := llm.ParseExtraction("```json\n" + `{"facts":[{"fact":"User loves pizza.","type":"preference","confidence":0.8,"evidence":"I love pizza"}]}` + "\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]memory.ExtractedFact{{
			Fact:       "User loves pizza.",
			Type:       storage.FactTypePreference,
			Confidence: 0.8,
			Evidence:   "I love pizza",
		}}))
	})

	It("maps unknown types to other and skips empty facts", func() {
		facts, err := llm.ParseExtraction(`{"facts":[{"fact":"User climbs.","type":"Hobby"},{"fact":"  "}]}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Type).To(Equal(storage.FactTypeOther))
		Expect(math.IsNaN(facts[0].Confidence)).To(BeTrue())
	})

	It("treats a non-numeric confidence as missing", func() {
		facts, err := llm.ParseExtraction(`{"facts":[{"fact":"User climbs.","confidence":"high"}]}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(math.IsNaN(facts[0].Confidence)).To(BeTrue())
	})

	It("fails without a JSON object", func() {
		_, err := llm.ParseExtraction("no facts here")
		Expect(err).To(HaveOccurred())
	})

	It("fails on malformed JSON", func() {
		_, err := llm.ParseExtraction(`{"facts": [ {"fact": }`)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("FactExtractor", func() {
	var (
		prompts []string
		models  []string
		reply   string
		callErr error
	)

	BeforeEach(func() {
		prompts, models, reply, callErr = nil, nil, "", nil
	})

	call := func(_ context.Context, model, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		models = append(models, model)
		return reply, callErr
	}

	It("prompts with the author and message and caps the result", func() {
		reply = `{"facts":[{"fact":"User a."},{"fact":"User b."},{"fact":"User c."}]}`
		x := llm.NewFactExtractor(call, nil)

		facts, err := x.ExtractMemoryFacts(context.Background(), memory.ExtractRequest{
			Settings:       memory.Settings{ExtractionModel: "small-model"},
			AuthorName:     "alice",
			MessageContent: "I climb on weekends",
			MaxFacts:       2,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(2))
		Expect(prompts[0]).To(ContainSubstring("Author: alice"))
		Expect(prompts[0]).To(ContainSubstring("I climb on weekends"))
		Expect(prompts[0]).To(ContainSubstring("at most 2 facts"))
		Expect(models[0]).To(Equal("small-model"))
	})

	It("skips empty messages without calling the model", func() {
		x := llm.NewFactExtractor(call, nil)

		facts, err := x.ExtractMemoryFacts(context.Background(), memory.ExtractRequest{MessageContent: "  ", MaxFacts: 4})
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(BeEmpty())
		Expect(prompts).To(BeEmpty())
	})

	It("propagates call failures", func() {
		callErr = errors.New("timeout")
		x := llm.NewFactExtractor(call, nil)

		_, err := x.ExtractMemoryFacts(context.Background(), memory.ExtractRequest{MessageContent: "hello there", MaxFacts: 4})
		Expect(err).To(MatchError(ContainSubstring("timeout")))
	})
})
