package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mtconnect-org/agent/internal/mterror"
	"github.com/mtconnect-org/agent/internal/printer"
)

// streamCurrent serves the streaming variant of /current: one part per
// iteration showing the current-at-now snapshot, paced by interval/heartbeat
// (spec.md §4.8). There is no sample-range advance in current mode — each
// part simply reflects the latest state at write time.
func (s *Server) streamCurrent(w http.ResponseWriter, r *http.Request, f printer.Format, ids []string, interval int, heartbeat time.Duration) {
	mw, ok := s.beginMultipart(w, f)
	if !ok {
		return
	}
	observer, unsubscribe := s.Notifier.Subscribe(ids)
	defer unsubscribe()

	gap := time.Duration(interval) * time.Millisecond
	for {
		iterStart := time.Now()

		obs := s.Buffer.Latest(ids)
		body, err := printer.RenderObservations(f, obs)
		if err != nil {
			return
		}
		if !mw.writePart(body) {
			return
		}

		observer.Reset()
		waitDeadline := time.Now().Add(heartbeat)
		for {
			remaining := time.Until(waitDeadline)
			if remaining <= 0 {
				break
			}
			if observer.Wait(remaining) {
				break
			}
		}

		if rem := gap - time.Since(iterStart); rem > 0 {
			time.Sleep(rem)
		}

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

// streamSample serves the streaming variant of /sample: it advances start
// across iterations, draining the buffer in order and falling back to
// waiting on the observer once caught up (spec.md §4.8).
func (s *Server) streamSample(w http.ResponseWriter, r *http.Request, f printer.Format, ids []string, start uint64, count int, interval int, heartbeat time.Duration) {
	mw, ok := s.beginMultipart(w, f)
	if !ok {
		return
	}
	observer, unsubscribe := s.Notifier.Subscribe(ids)
	defer unsubscribe()

	gap := time.Duration(interval) * time.Millisecond
	for {
		iterStart := time.Now()

		nextSeq, firstSeq := s.Buffer.Snapshot()
		if start < firstSeq {
			body, err := printer.RenderError(f, mterror.OutOfRange, "requested start has fallen out of the buffer")
			if err == nil {
				mw.writePart(body)
			}
			return
		}

		obs, endSeq, atEnd := s.Buffer.Range(ids, start, count)
		observer.Reset()

		body, err := printer.RenderObservations(f, obs)
		if err != nil {
			return
		}
		if !mw.writePart(body) {
			return
		}

		if !atEnd {
			time.Sleep(time.Millisecond)
			start = endSeq
		} else {
			waitDeadline := time.Now().Add(heartbeat)
			signaled := false
			for {
				remaining := time.Until(waitDeadline)
				if remaining <= 0 {
					break
				}
				if observer.Wait(remaining) {
					signaled = true
					break
				}
			}
			if signaled {
				if seq, ok := observer.TriggeredSeq(); ok {
					start = seq
				} else {
					start = nextSeq
				}
			} else {
				start = nextSeq
			}
		}

		if rem := gap - time.Since(iterStart); rem > 0 {
			time.Sleep(rem)
		}

		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

// multipartWriter writes successive multipart/x-mixed-replace parts over a
// chunked HTTP/1.1 response (spec.md §4.8, §6).
type multipartWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	boundary string
	format   printer.Format
}

func (s *Server) beginMultipart(w http.ResponseWriter, f printer.Format) (*multipartWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, f, mterror.InternalError, "response writer does not support streaming", http.StatusOK)
		return nil, false
	}
	boundary := uuid.NewString()
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace;boundary=%s", boundary))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &multipartWriter{w: w, flusher: flusher, boundary: boundary, format: f}, true
}

// writePart writes one multipart part; it reports false once the underlying
// connection has failed, which is how a streamer detects client cancellation
// (spec.md §4.8 "cancellation: detected by the next write failing").
func (mw *multipartWriter) writePart(body []byte) bool {
	_, err := fmt.Fprintf(mw.w, "--%s\r\nContent-type: %s\r\nContent-length: %d\r\n\r\n%s\r\n",
		mw.boundary, mw.format.ContentType(), len(body), body)
	if err != nil {
		return false
	}
	mw.flusher.Flush()
	return true
}
