package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"smscast/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Layout: one append-only JSON Lines file, one record per line in
// append (oldest-first) order. The full history is kept in memory
// newest-first; Delete and Clear rewrite the file atomically.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File // append handle

	recs   []Record // newest-first
	nextID int64

	now func() time.Time
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history: path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{log: log, path: path, nextID: 1, now: time.Now}
	if err := st.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st.f = f
	return st, nil
}

func (s *fileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(b, &r); err != nil {
			// Tolerate a torn trailing line; anything else is corruption worth surfacing.
			s.log.Warn("skipping unreadable history line", logx.Int("line", line), logx.Err(err))
			continue
		}
		// prepend: file order is oldest-first, memory order is newest-first
		s.recs = append([]Record{r}, s.recs...)
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	return sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) Append(ctx context.Context, e Entry) (Record, error) {
	if strings.TrimSpace(e.Recipient) == "" {
		return Record{}, ErrInvalidEntry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e)
}

func (s *fileStore) appendLocked(e Entry) (Record, error) {
	now := s.now()
	r := Record{
		ID:        s.nextID,
		Date:      now.Format(dateLayout),
		Time:      now.Format("15:04:05"),
		Timestamp: now.UnixMilli(),
		Recipient: e.Recipient,
		Phone:     e.Phone,
		Message:   e.Message,
		Status:    statusOf(e),
		Error:     e.Error,
	}

	b, err := json.Marshal(r)
	if err != nil {
		return Record{}, err
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return Record{}, err
	}

	s.nextID++
	s.recs = append([]Record{r}, s.recs...)
	return r, nil
}

func (s *fileStore) AppendBatch(ctx context.Context, entries []Entry) ([]Record, error) {
	for _, e := range entries {
		if strings.TrimSpace(e.Recipient) == "" {
			return nil, ErrInvalidEntry
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		r, err := s.appendLocked(e)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fileStore) Query(ctx context.Context, w Window) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff, bounded := cutoffDate(w, s.now())
	if !bounded {
		return append([]Record(nil), s.recs...), nil
	}
	out := make([]Record, 0, len(s.recs))
	for _, r := range s.recs {
		if r.Date >= cutoff {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fileStore) Stats(ctx context.Context, w Window) (Stats, error) {
	recs, err := s.Query(ctx, w)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(recs)}
	for _, r := range recs {
		if r.Status == StatusSuccess {
			st.Success++
		} else {
			st.Failed++
		}
	}
	st.SuccessRate = rate(st.Success, st.Total)
	return st, nil
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < 0 {
		limit = 0
	}
	if limit > len(s.recs) {
		limit = len(s.recs)
	}
	return append([]Record(nil), s.recs[:limit]...), nil
}

func (s *fileStore) ByDate(ctx context.Context, date string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, 8)
	for _, r := range s.recs {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fileStore) MonthlySummary(ctx context.Context) (map[string]Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := make(map[string]Stats)
	for _, r := range s.recs {
		if len(r.Date) < 7 {
			continue
		}
		ym := r.Date[:7]
		st := sum[ym]
		st.Total++
		if r.Status == StatusSuccess {
			st.Success++
		} else {
			st.Failed++
		}
		sum[ym] = st
	}
	for ym, st := range sum {
		st.SuccessRate = rate(st.Success, st.Total)
		sum[ym] = st
	}
	return sum, nil
}

func (s *fileStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.recs {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	kept := append(append([]Record(nil), s.recs[:idx]...), s.recs[idx+1:]...)
	if err := s.rewriteLocked(kept); err != nil {
		return err
	}
	s.recs = kept
	return nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rewriteLocked(nil); err != nil {
		return err
	}
	s.recs = nil
	return nil
}

// rewriteLocked replaces the journal with the given records (newest-first
// in memory, written oldest-first) via tmp+rename, then reopens the
// append handle.
func (s *fileStore) rewriteLocked(recs []Record) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for i := len(recs) - 1; i >= 0; i-- {
		b, err := json.Marshal(recs[i])
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	s.f = nf
	return nil
}
