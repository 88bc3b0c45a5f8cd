package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caffeineduck/runjs/executor"
	"github.com/caffeineduck/runjs/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxRequestSize  = 1 << 20
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for script execution",
		Long: `Start an HTTP server that runs each request in a fresh session.

Endpoints:
  POST   /execute        Run a script: {"code":"...","name":"job.ts","timeout":"5s"}
  GET    /capabilities   List the host capabilities scripts can call
  GET    /health         Health check

Mounts, allowed hosts and limits apply to every request.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", ":8080", "Address to listen on")
	addSessionFlags(cmd)
	return cmd
}

type executeRequest struct {
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type executeResponse struct {
	SessionID  string `json:"session_id"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
	Operations int64  `json:"operations"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Error      string `json:"error,omitempty"`
}

type server struct {
	exec   *executor.Executor
	cfg    config.Config
	logger *zap.Logger
}

func newServer(exec *executor.Executor, cfg config.Config, logger *zap.Logger) *server {
	return &server{exec: exec, cfg: cfg, logger: logger}
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Capabilities []string `json:"capabilities"`
	}{Capabilities: s.exec.Registry().Names()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}

	timeout := s.cfg.Timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d < 0 {
			http.Error(w, fmt.Sprintf("invalid timeout %q", req.Timeout), http.StatusBadRequest)
			return
		}
		timeout = d
	}

	name := req.Name
	if name == "" {
		name = "request.js"
	}

	var stdout, stderr bytes.Buffer
	opts := append(s.cfg.SessionOptions(),
		executor.WithTimeout(timeout),
		executor.WithStdout(&stdout),
		executor.WithStderr(&stderr),
		executor.WithErrorSink(func(err error) {
			s.logger.Info("script error", zap.String("script", name), zap.Error(err))
		}),
	)
	result := s.exec.Run(r.Context(), executor.Script{Name: name, Source: req.Code}, opts...)

	resp := executeResponse{
		SessionID:  result.SessionID,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: result.Duration.Milliseconds(),
		Operations: result.Operations,
		TimedOut:   result.TimedOut,
	}
	if result.Error != nil {
		resp.Error = result.Error.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	execOpts, err := cfg.ExecutorOptions(logger)
	if err != nil {
		return err
	}
	exec, err := executor.New(execOpts...)
	if err != nil {
		return err
	}
	defer exec.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newServer(exec, cfg, logger).handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(cmd.ErrOrStderr(), "runjs server listening on %s\n", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
