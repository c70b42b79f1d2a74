package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streamsim/streamsim/sim/observer"
)

func newServeCmd() *cobra.Command {
	var (
		world       worldFlags
		addr        string
		autoplay    bool
		allowRemote bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a world over WebSocket for interactive observation",
		Run: func(cmd *cobra.Command, args []string) {
			w, err := world.load(cmd.Flags().Changed("seed"))
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			srv := observer.NewServer(w.sim, observer.Options{AllowRemote: allowRemote})
			srv.Attach(w.sim)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				w.sim.Terminate()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			if autoplay {
				if err := w.sim.Play(); err != nil {
					logrus.Fatalf("starting simulation: %v", err)
				}
			}
			logrus.Infof("observer listening on %s (/ws, /state)", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatalf("observer server: %v", err)
			}
		},
	}
	world.register(cmd, 250*time.Millisecond)
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().BoolVar(&autoplay, "play", false, "Start the simulation immediately instead of waiting for a client")
	cmd.Flags().BoolVar(&allowRemote, "allow-remote", false, "Accept connections from non-loopback addresses")
	return cmd
}
