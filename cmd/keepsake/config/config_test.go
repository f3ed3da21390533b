package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/keepsake/cmd/keepsake/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .keepsake dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".keepsake"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			out, err := run("set", "llm.provider", "anthropic")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Set llm.provider = anthropic"))

			data, err := os.ReadFile(filepath.Join(tmpDir, ".keepsake", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`provider = "anthropic"`))
		})

		It("rejects unknown keys", func() {
			_, err := run("set", "proxy.provider", "anthropic")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := run("set", "llm.provider")
			Expect(err).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			_, err := run("set")
			Expect(err).To(HaveOccurred())
		})

		DescribeTable("rejects invalid values",
			func(key, value string) {
				_, err := run("set", key, value)
				Expect(err).To(HaveOccurred())
			},
			Entry("uint", "embedding.dimensions", "not-a-number"),
			Entry("bool", "memory.enabled", "sometimes"),
			Entry("duration", "memory.snapshot_debounce", "soon"),
		)
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := run("set", "llm.model", "gpt-4o-mini")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("get", "llm.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("gpt-4o-mini"))
		})

		It("falls back to the default for an unset key", func() {
			out, err := run("get", "embedding.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("embeddinggemma"))
		})

		It("rejects unknown keys", func() {
			_, err := run("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			_, err := run("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key when no config exists", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("No config file found"))
			Expect(out).To(ContainSubstring("storage.provider"))
			Expect(out).To(ContainSubstring("client.api_target"))
		})

		It("shows stored values", func() {
			_, err := run("set", "events.brokers", "k1:9092, k2:9092")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(MatchRegexp(`events\.brokers\s+k1:9092,k2:9092`))
		})

		It("rejects any arguments", func() {
			_, err := run("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})
