// Package cmdtest runs keepsake client commands against an in-process API
// server in tests.
package cmdtest

import (
	"bytes"
	"context"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/keepsake/api"
	"github.com/papercomputeco/keepsake/pkg/memory"
	"github.com/papercomputeco/keepsake/pkg/storage/inmemory"
)

// Server is an API server over an in-memory engine.
type Server struct {
	URL    string
	Store  *inmemory.Driver
	Engine *memory.Engine
}

// NewServer starts a server for the current spec. cfg may carry extra engine
// collaborators; its Store is replaced by an in-memory driver.
func NewServer(cfg *memory.Config) *Server {
	if cfg == nil {
		cfg = &memory.Config{}
	}
	store := inmemory.NewDriver()
	cfg.Store = store

	engine, err := memory.NewEngine(cfg)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(engine.Close, context.Background())

	server, err := api.NewServer(api.Config{}, engine)
	Expect(err).NotTo(HaveOccurred())

	ts := httptest.NewServer(server.Handler())
	DeferCleanup(ts.Close)

	return &Server{URL: ts.URL, Store: store, Engine: engine}
}

// Run executes cmd with args against the server and returns its output.
// The global flags normally inherited from the root command are added here.
func (s *Server) Run(cmd *cobra.Command, args ...string) (string, error) {
	cmd.Flags().String("config-dir", GinkgoT().TempDir(), "")
	cmd.Flags().Bool("debug", false, "")

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--api-target", s.URL))

	err := cmd.Execute()
	return out.String(), err
}
