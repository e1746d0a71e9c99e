// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package host

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"grimm.is/hearth/internal/logging"
)

// maxFrameSize bounds a single native-messaging frame. The browser caps
// messages to the host at 4 MB; anything larger is a broken peer.
const maxFrameSize = 4 << 20

// wireEvent is the envelope the browser extension sends over the
// native-messaging pipe: a 32-bit little-endian length, then JSON.
type wireEvent struct {
	Type    string    `json:"type"`
	Tab     Tab       `json:"tab"`
	TabID   int       `json:"tabId"`
	URL     string    `json:"url"`
	Focused bool      `json:"focused"`
	State   IdleState `json:"state"`
}

// StdioSource decodes extension events from a native-messaging stream.
type StdioSource struct {
	r      io.Reader
	events chan Event
	logger *logging.Logger
}

// NewStdioSource starts decoding r immediately. The events channel is
// closed when the stream ends, which is how the agent learns the
// browser side went away.
func NewStdioSource(r io.Reader, logger *logging.Logger) *StdioSource {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	s := &StdioSource{
		r:      r,
		events: make(chan Event, 64),
		logger: logger.WithComponent("host"),
	}
	go s.readLoop()
	return s
}

// Events implements EventSource.
func (s *StdioSource) Events() <-chan Event {
	return s.events
}

func (s *StdioSource) readLoop() {
	defer close(s.events)

	for {
		var length uint32
		if err := binary.Read(s.r, binary.LittleEndian, &length); err != nil {
			if err != io.EOF {
				s.logger.WithError(err).Warn("Event stream read failed")
			}
			return
		}
		if length == 0 {
			s.logger.Debug("Skipping empty event frame")
			continue
		}
		if length > maxFrameSize {
			s.logger.Warn("Dropping oversized event frame", "length", length)
			if _, err := io.CopyN(io.Discard, s.r, int64(length)); err != nil {
				return
			}
			continue
		}

		buf := make([]byte, length)
		if _, err := io.ReadFull(s.r, buf); err != nil {
			s.logger.WithError(err).Warn("Event stream truncated")
			return
		}

		var we wireEvent
		if err := json.Unmarshal(buf, &we); err != nil {
			// A malformed frame is the extension's bug, not fatal here.
			s.logger.WithError(err).Warn("Dropping malformed event")
			continue
		}

		ev := we.toEvent()
		if ev == nil {
			s.logger.Warn("Unknown event type", "type", we.Type)
			continue
		}
		s.events <- ev
	}
}

func (w wireEvent) toEvent() Event {
	switch w.Type {
	case "tab_activated":
		return TabActivated{Tab: w.Tab}
	case "url_changed":
		return URLChanged{TabID: w.TabID, URL: w.URL, Tab: w.Tab}
	case "window_focus_changed":
		return WindowFocusChanged{Focused: w.Focused}
	case "idle_state_changed":
		return IdleStateChanged{State: w.State}
	default:
		return nil
	}
}
