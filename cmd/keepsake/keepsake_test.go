package keepsakecmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	keepsakecmder "github.com/papercomputeco/keepsake/cmd/keepsake"
)

var _ = Describe("NewKeepsakeCmd", func() {
	It("registers every subcommand", func() {
		cmd := keepsakecmder.NewKeepsakeCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements(
			"serve", "search", "remember", "ingest", "snapshot",
			"backfill", "status", "config", "version",
		))
	})

	It("exposes the global flags to subcommands", func() {
		cmd := keepsakecmder.NewKeepsakeCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("prints the version", func() {
		var out bytes.Buffer
		cmd := keepsakecmder.NewKeepsakeCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Version: dev"))
	})

	It("routes config through --config-dir", func() {
		dir := GinkgoT().TempDir()

		var out bytes.Buffer
		cmd := keepsakecmder.NewKeepsakeCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"config", "set", "api.listen", ":9999", "--config-dir", dir})
		Expect(cmd.Execute()).To(Succeed())

		out.Reset()
		cmd = keepsakecmder.NewKeepsakeCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"config", "get", "api.listen", "--config-dir", dir})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(":9999"))
	})
})
