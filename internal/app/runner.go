package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/square-connect/internal/config"
	"github.com/Adda-Baaj/square-connect/internal/journal"
	"github.com/Adda-Baaj/square-connect/internal/logger"
	"github.com/Adda-Baaj/square-connect/pkg/httpclient"
	"github.com/Adda-Baaj/square-connect/pkg/publishers"
	"github.com/Adda-Baaj/square-connect/pkg/square"
	"go.uber.org/zap"
)

// Call is one API request issued by the runner.
type Call struct {
	Path   string
	Method string
	Params map[string]any
}

// Runner wires the API client with the call journal and result publishers.
type Runner struct {
	cfg    *config.Config
	client *square.Client
	store  journal.Store
	fanout *publishers.Fanout
	log    logger.Logger
}

type sugarProvider interface {
	Sugar() *zap.SugaredLogger
}

// NewRunner builds a runner from config. Publishers are optional: an empty
// publishers_file disables forwarding.
func NewRunner(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	transport := httpclient.NewRestyClient(cfg.RequestTimeout)
	if sp, ok := log.(sugarProvider); ok {
		transport.WithLogger(sp.Sugar())
	}
	client := square.NewWithOptions(square.Options{
		AccessToken: cfg.AccessToken,
		Logger:      log,
		HTTPClient:  transport,
		BaseURL:     cfg.BaseURL,
	})

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := journal.NewStore(cfg.JournalType, cfg.JournalPath, journal.Options{
		EntryTTL:        cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	log.InfoObj("journal initialized", "journal_config", map[string]any{
		"type":                     cfg.JournalType,
		"path":                     cfg.JournalPath,
		"entry_ttl_seconds":        int(cfg.JournalTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.JournalCleanupInterval.Seconds()),
	})

	return &Runner{
		cfg:    cfg,
		client: client,
		store:  store,
		fanout: fanout,
		log:    log,
	}, nil
}

func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

type outcome struct {
	resp *square.Response
	err  error
}

// Call issues one request and waits for its outcome, then journals and forwards it.
// Journal and publisher failures are logged and never replace the API outcome.
func (r *Runner) Call(ctx context.Context, c Call) (*square.Response, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("runner is not initialized")
	}

	done := make(chan outcome, 1)
	opts := []square.RequestOption{
		square.WithCallback(func(resp *square.Response, err error) {
			done <- outcome{resp: resp, err: err}
		}),
	}
	if c.Method != "" {
		opts = append(opts, square.WithMethod(c.Method))
	}
	if c.Params != nil {
		opts = append(opts, square.WithParams(c.Params))
	}

	start := time.Now()
	r.client.API(ctx, c.Path, opts...)

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if method == "" {
		method = http.MethodGet
	}
	r.log.InfoObj("api call completed", "call_meta", map[string]any{
		"method":     method,
		"path":       c.Path,
		"elapsed_ms": time.Since(start).Milliseconds(),
		"failed":     out.err != nil,
	})
	r.record(ctx, method, c.Path, out)
	return out.resp, out.err
}

func (r *Runner) record(ctx context.Context, method, path string, out outcome) {
	entry := journal.Entry{Method: method, Path: path}
	if out.resp != nil {
		entry.StatusCode = out.resp.StatusCode
	}
	if out.err != nil {
		entry.ErrorMessage = out.err.Error()
		var apiErr *square.Error
		if errors.As(out.err, &apiErr) {
			entry.ErrorKind = apiErr.Kind.String()
			entry.ErrorType = apiErr.Type
			entry.ErrorMessage = apiErr.Message
		}
	}
	if err := r.store.Record(entry); err != nil {
		r.log.ErrorObj("journal record failed", "error", err)
	}

	if r.fanout.Size() == 0 {
		return
	}
	evt := publishers.NewEvent(method, path, out.resp, out.err)
	sent, err := r.fanout.Publish(ctx, evt)
	if err != nil {
		r.log.ErrorObj("event publish failed", "publish_error", map[string]any{
			"event_id":   evt.ID,
			"successful": sent,
			"error":      err.Error(),
		})
	}
}

// History returns up to limit journal entries, newest first.
func (r *Runner) History(limit int) ([]journal.Entry, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("runner is not initialized")
	}
	return r.store.Recent(limit)
}

// Close releases the journal and publishers.
func (r *Runner) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := r.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
