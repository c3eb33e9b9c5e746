package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog/log"

	"github.com/lox/rollbook/internal/metrics"
)

// FTPConfig points at a drop directory where rosters are published.
type FTPConfig struct {
	Addr     string
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
}

type FTPClient struct {
	cfg            FTPConfig
	maxElapsedTime time.Duration
}

func NewFTPClient(cfg FTPConfig) *FTPClient {
	if cfg.User == "" {
		cfg.User = "anonymous"
		cfg.Password = "anonymous"
	}
	if cfg.Dir == "" {
		cfg.Dir = "/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FTPClient{cfg: cfg, maxElapsedTime: 2 * time.Minute}
}

func (c *FTPClient) Addr() string { return c.cfg.Addr }

// Fetch downloads every roster file in the drop directory. Transient
// failures are retried with exponential backoff.
func (c *FTPClient) Fetch(ctx context.Context) ([]Source, error) {
	var sources []Source
	operation := func() error {
		var err error
		sources, err = c.fetchOnce(ctx)
		if err != nil && !isTransientFTP(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.FTPFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FTPFetches.WithLabelValues("ok").Inc()
	return sources, nil
}

func (c *FTPClient) fetchOnce(ctx context.Context) ([]Source, error) {
	conn, err := ftp.Dial(c.cfg.Addr, ftp.DialWithTimeout(c.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(c.cfg.User, c.cfg.Password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	entries, err := conn.List(c.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", c.cfg.Dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.Type == ftp.EntryTypeFile && IsRosterFile(e.Name) {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		data, err := retrieve(conn, path.Join(c.cfg.Dir, name))
		if err != nil {
			return nil, err
		}
		sources = append(sources, ReaderSource{SourceName: name, Data: data})
	}

	log.Info().Str("addr", c.cfg.Addr).Str("dir", c.cfg.Dir).Int("rosters", len(sources)).Msg("ftp fetch complete")
	return sources, nil
}

func retrieve(conn *ftp.ServerConn, p string) ([]byte, error) {
	resp, err := conn.Retr(p)
	if err != nil {
		return nil, fmt.Errorf("ftp retr %s: %w", p, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(io.LimitReader(resp, MaxRosterBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if len(data) > MaxRosterBytes {
		return nil, fmt.Errorf("%s larger than %d bytes", p, MaxRosterBytes)
	}
	return data, nil
}

// isTransientFTP treats 4xx replies and network failures as retryable.
// 5xx replies (bad credentials, missing directory) are not.
func isTransientFTP(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	return true
}
