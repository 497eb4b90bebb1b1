// Package remote lists and fetches files on anonymous FTP mirrors. A Session
// hides connection loss from callers by reconnecting and replaying the
// operation that failed; a Walker builds on it to index whole directory trees.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"
)

// Entry is one line of a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// Conn is a logged-in connection to a mirror.
type Conn interface {
	List(path string) ([]Entry, error)
	Retrieve(path string) (io.ReadCloser, error)
	Close() error
}

// Dialer opens new connections. Dial returns only after login succeeded.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Logger receives reconnect and progress messages.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// FTPDialer dials an FTP host and logs in anonymously.
type FTPDialer struct {
	Host     string
	Timeout  time.Duration
	User     string
	Password string
}

// Dial implements Dialer.
func (d FTPDialer) Dial(ctx context.Context) (Conn, error) {
	addr := d.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr += ":21"
	}
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if d.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(d.Timeout))
	}
	sc, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	user, pass := d.User, d.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := sc.Login(user, pass); err != nil {
		_ = sc.Quit()
		return nil, fmt.Errorf("remote: login %s: %w", addr, err)
	}
	return &ftpConn{sc: sc}, nil
}

type ftpConn struct {
	sc *ftp.ServerConn
}

func (c *ftpConn) List(path string) ([]Entry, error) {
	raw, err := c.sc.List(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, Entry{Name: e.Name, Dir: e.Type == ftp.EntryTypeFolder})
	}
	return entries, nil
}

func (c *ftpConn) Retrieve(path string) (io.ReadCloser, error) {
	resp, err := c.sc.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *ftpConn) Close() error {
	return c.sc.Quit()
}

// IsPermanent reports whether err is a server reply that retrying cannot
// fix, such as a missing file or a permission problem.
func IsPermanent(err error) bool {
	var reply *textproto.Error
	if !errors.As(err, &reply) {
		return false
	}
	switch reply.Code {
	case ftp.StatusFileUnavailable, ftp.StatusPageTypeUnknown, ftp.StatusBadFileName:
		return true
	}
	return false
}

// Session keeps one connection alive for the duration of a crawl.
//
// Connect and Ensure retry without limit: a crawl is an offline batch job and
// an unreachable mirror makes it wait rather than give up. Cancelling the
// context is the only way out.
type Session struct {
	dialer     Dialer
	conn       Conn
	retryDelay time.Duration
	log        Logger
	reconnects int
}

// Option customises a Session.
type Option func(*Session)

// WithRetryDelay pauses between connection attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithLogger sets the sink for reconnect messages.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSession wraps dialer. No connection is made until first use.
func NewSession(dialer Dialer, opts ...Option) *Session {
	s := &Session{dialer: dialer, log: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Connect blocks until a fresh connection is logged in or ctx ends.
func (s *Session) Connect(ctx context.Context) error {
	s.drop()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := s.dialer.Dial(ctx)
		if err == nil {
			s.conn = conn
			return nil
		}
		s.log.Printf("connect attempt %d failed: %v", attempt, err)
		if s.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}
	}
}

// Ensure runs op against a live connection. A transport failure discards the
// connection, reconnects and runs op again from its start. Permanent server
// replies are returned to the caller unchanged.
func (s *Session) Ensure(ctx context.Context, op func(Conn) error) error {
	for {
		if s.conn == nil {
			if err := s.Connect(ctx); err != nil {
				return err
			}
		}
		err := op(s.conn)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.reconnects++
		s.log.Printf("connection lost (%v), reconnecting", err)
		s.drop()
	}
}

// List returns the entries of path.
func (s *Session) List(ctx context.Context, path string) ([]Entry, error) {
	var entries []Entry
	err := s.Ensure(ctx, func(c Conn) error {
		listed, err := c.List(path)
		if err != nil {
			return err
		}
		entries = listed
		return nil
	})
	return entries, err
}

// ReadFile downloads path into memory. A transfer cut short is restarted.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.Ensure(ctx, func(c Conn) error {
		body, err := c.Retrieve(path)
		if err != nil {
			return err
		}
		defer body.Close()
		read, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		data = read
		return nil
	})
	return data, err
}

// Reconnects reports how many times a lost connection was replaced.
func (s *Session) Reconnects() int {
	return s.reconnects
}

// Close ends the current connection, if any.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
