package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ledgerdev/internal/api"
	"ledgerdev/internal/logging"
	"ledgerdev/internal/toolchain"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve developer-panel operations over local HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack()
		if err != nil {
			return err
		}
		defer stack.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, cancel := signalContext()
		defer cancel()

		var audit api.AuditReader
		if stack.Store != nil {
			audit = stack.Store
		}
		srv := api.NewServer(stack.Service, audit)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(gctx, addr) })

		if cfg.Toolchain.WatchInstallDirs {
			w, err := toolchain.NewWatcher(stack.Resolver.Cache(), stack.Resolver.SearchDirs())
			if err != nil {
				logging.ResolverWarn("install-dir watcher disabled: %v", err)
			} else {
				g.Go(func() error { return w.Run(gctx) })
			}
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}
