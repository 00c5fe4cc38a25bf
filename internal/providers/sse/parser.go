package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// frame is one dispatched server-sent event.
type frame struct {
	Event string
	Data  []byte
	ID    string
	HasID bool
	Retry time.Duration
}

func (f frame) empty() bool {
	return f.Event == "" && len(f.Data) == 0 && !f.HasID && f.Retry == 0
}

type frameParser struct {
	reader *bufio.Reader
}

func newFrameParser(r io.Reader) *frameParser {
	return &frameParser{reader: bufio.NewReader(r)}
}

// Next returns the next event. Comment lines (keepalives) are skipped.
func (p *frameParser) Next() (frame, error) {
	var current frame
	var dataLines []string

	dispatch := func() frame {
		if len(dataLines) > 0 {
			current.Data = []byte(strings.Join(dataLines, "\n"))
		}
		return current
	}

	for {
		line, err := p.reader.ReadString('\n')
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return frame{}, err
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			out := dispatch()
			if out.empty() {
				if eof {
					return frame{}, io.EOF
				}
				continue
			}
			return out, nil
		}

		if !strings.HasPrefix(line, ":") {
			field, value := splitField(line)
			switch field {
			case "event":
				current.Event = value
			case "data":
				dataLines = append(dataLines, value)
			case "id":
				if !strings.ContainsRune(value, 0) {
					current.ID = value
					current.HasID = true
				}
			case "retry":
				if ms, convErr := strconv.Atoi(value); convErr == nil && ms >= 0 {
					current.Retry = time.Duration(ms) * time.Millisecond
				}
			}
		}

		if eof {
			out := dispatch()
			if out.empty() {
				return frame{}, io.EOF
			}
			return out, nil
		}
	}
}

func splitField(line string) (field string, value string) {
	index := strings.IndexByte(line, ':')
	if index < 0 {
		return line, ""
	}
	field = line[:index]
	value = strings.TrimPrefix(line[index+1:], " ")
	return field, value
}
