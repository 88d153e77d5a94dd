package bridge

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one Server-Sent Event.
type sseEvent struct {
	Type string
	Data string
}

// sseScanner reads events separated by blank lines. Comment lines and
// unknown fields are skipped.
type sseScanner struct {
	r   *bufio.Reader
	cur sseEvent
	err error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.cur = sseEvent{}
	var data []string
	has := false

	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line == "" && err == nil {
			if has {
				s.cur.Data = strings.Join(data, "\n")
				return true
			}
			continue
		}

		if line != "" && !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				s.cur.Type = value
			case "data":
				data = append(data, value)
				has = true
			}
		}

		if err != nil {
			s.err = err
			if has {
				s.cur.Data = strings.Join(data, "\n")
				return true
			}
			return false
		}
	}
}

func (s *sseScanner) Event() sseEvent { return s.cur }

// Err returns the read error that ended the stream, or nil on clean EOF.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
