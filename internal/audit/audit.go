package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/domainforge/gateway/internal/auth"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	UserID    uuid.UUID
	Verb      string
	Payload   json.RawMessage
	IPAddress *netip.Addr
	UserAgent *string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed in batches by a background goroutine.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the database.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting entries and waits for the pending batch to flush.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "verb", entry.Verb)
	}
}

// LogFromRequest extracts the identity, client IP and user agent from the
// request context, then enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, verb string, payload json.RawMessage) {
	entry := Entry{Verb: verb, Payload: payload}

	if id := auth.FromContext(r.Context()); id != nil {
		entry.UserID = id.UserID
	}

	if ip := clientIP(r); ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run drains the entries channel, flushing on a timer or once a batch fills.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the audit_log table.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		userID := pgtype.UUID{Bytes: e.UserID, Valid: e.UserID != uuid.Nil}

		var ipStr *string
		if e.IPAddress != nil {
			s := e.IPAddress.String()
			ipStr = &s
		}

		if _, err := w.pool.Exec(ctx,
			`INSERT INTO audit_log (id, user_id, verb, payload_json, ip_address, user_agent, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now())`,
			uuid.New(), userID, e.Verb, e.Payload, ipStr, e.UserAgent,
		); err != nil {
			w.logger.Error("writing audit log entry", "error", err, "verb", e.Verb)
		}
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
