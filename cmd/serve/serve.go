// Package serve provides the "sheetmerge serve" command.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/cmd/cmdutil"
	"github.com/klytics/sheetmerge/internal/output"
	"github.com/klytics/sheetmerge/internal/server"
)

// NewCommand returns the serve command.
func NewCommand() *cobra.Command {
	var (
		host       string
		port       int
		sessionTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the merge workflow as a JSON API",
		Long: `Start an HTTP server for front-ends that drive a merge step by step:
upload an archive, list its sheets and columns, set selections and download
the merged workbook.

Routes:
  POST   /api/v1/sessions                 ZIP archive as body (?name=, ?profile=)
  GET    /api/v1/sessions/{id}/files
  GET    /api/v1/sessions/{id}/columns?file=&sheet=
  PUT    /api/v1/sessions/{id}/selection  {"file","sheet","columns":[0,2]}
  POST   /api/v1/sessions/{id}/output     merged .xlsx
  DELETE /api/v1/sessions/{id}
  GET    /health

Example:
  sheetmerge serve --port 8765
  curl --data-binary @reports.zip 'http://127.0.0.1:8765/api/v1/sessions?name=reports.zip'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			if !cmd.Flags().Changed("host") {
				host = env.Config.Serve.Host
			}
			if !cmd.Flags().Changed("port") {
				port = env.Config.Serve.Port
			}

			profiles, err := env.Profiles()
			if err != nil {
				return err
			}
			srv := server.NewServer(server.Config{
				Host:        host,
				Port:        port,
				MaxUploadMB: env.Config.Serve.MaxUploadMB,
				SessionTTL:  sessionTTL,
			}, env.Options(), profiles, env.History, env.Logger)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s:%d (Ctrl+C to stop)\n", host, port)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return output.SystemError(fmt.Errorf("server failed: %w", err))
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Stop(shutdownCtx); err != nil {
				env.Logger.Warn("shutdown incomplete", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen address (default from serve.host)")
	cmd.Flags().IntVar(&port, "port", 8765, "Listen port (default from serve.port)")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", 30*time.Minute, "Close sessions idle for this long (0 keeps them)")

	return cmd
}
