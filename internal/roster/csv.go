package roster

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"smscast/internal/message"
	"smscast/pkg/logx"
)

// csvHeader matches the upload template: name, phone, birthday.
var csvHeader = []string{"이름", "전화번호", "생년월일"}

// ImportResult reports what a CSV import did.
type ImportResult struct {
	Added   int
	Skipped []string // per-line reasons, 1-based line numbers
}

// ImportCSV appends valid rows to the roster. The first line is treated
// as a header and skipped. Invalid lines are skipped and reported, not
// fatal; the import persists only once, after all rows are read.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	cr := csv.NewReader(stripBOM(r))
	cr.FieldsPerRecord = -1 // validated per line below

	var res ImportResult
	var accepted []Recipient
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("roster: csv read: %w", err)
		}
		line++
		if line == 1 {
			continue // header
		}

		skip := func(reason string) {
			res.Skipped = append(res.Skipped, fmt.Sprintf("line %d: %s", line, reason))
		}
		if len(rec) != 3 {
			skip("want 3 fields (name, phone, birthday)")
			continue
		}
		cand := Recipient{
			Name:     strings.TrimSpace(rec[0]),
			Phone:    message.NormalizePhone(rec[1]),
			Birthday: strings.TrimSpace(rec[2]),
		}
		if err := cand.Validate(); err != nil {
			skip(err.Error())
			continue
		}
		accepted = append(accepted, cand)
	}

	if len(res.Skipped) > 0 {
		s.log.Warn("csv import skipped lines", logx.Int("skipped", len(res.Skipped)), logx.Int("accepted", len(accepted)))
	}
	if err := s.addAll(ctx, accepted); err != nil {
		return res, err
	}
	res.Added = len(accepted)
	return res, nil
}

// ExportCSV writes the roster in template column order, header included.
func (s *Service) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range s.List() {
		if err := cw.Write([]string{r.Name, r.Phone, r.Birthday}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVTemplate returns a sample file for operators to fill in.
func CSVTemplate() []byte {
	return []byte("\ufeff이름,전화번호,생년월일\n홍길동,01012345678,1990-01-15\n김영희,01087654321,1985-03-22\n")
}

// stripBOM removes a UTF-8 byte order mark, common in spreadsheet exports.
func stripBOM(r io.Reader) io.Reader {
	br := &bomReader{r: r}
	return br
}

type bomReader struct {
	r       io.Reader
	checked bool
	buf     []byte
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head := make([]byte, 3)
		n, err := io.ReadFull(b.r, head)
		if err == io.EOF {
			return 0, io.EOF
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		head = head[:n]
		if !(n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF) {
			b.buf = head
		}
	}
	if len(b.buf) > 0 {
		n := copy(p, b.buf)
		b.buf = b.buf[n:]
		return n, nil
	}
	return b.r.Read(p)
}
