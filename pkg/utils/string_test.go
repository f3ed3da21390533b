package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Clip", func() {
	It("returns the string unchanged when within the limit", func() {
		Expect(Clip("short", 10)).To(Equal("short"))
	})

	It("cuts on rune boundaries", func() {
		Expect(Clip("héllo wörld", 7)).To(Equal("héllo w"))
	})

	It("trims whitespace left at the cut", func() {
		Expect(Clip("hello world", 6)).To(Equal("hello"))
	})

	It("returns empty for non-positive limits", func() {
		Expect(Clip("hello", 0)).To(BeEmpty())
	})
})

var _ = Describe("CollapseWhitespace", func() {
	It("collapses runs and trims", func() {
		Expect(CollapseWhitespace("  a\t\tb \n c  ")).To(Equal("a b c"))
	})
})
