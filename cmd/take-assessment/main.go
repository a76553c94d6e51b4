// Command take-assessment is a terminal shell for a proctored session.
// It stands in for the browser shell when testing a deployment.
//
// Usage:
//
//	go run ./cmd/take-assessment -addr localhost:8080 -assessment 42 -token <jwt>
//
// Keys: 1-9 select an option, n next, s submit, v simulate a tab switch,
// q quit.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/edusync/proctor/internal/logger"
	"github.com/edusync/proctor/internal/model"
	ws "github.com/edusync/proctor/internal/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	assessment := flag.String("assessment", "", "assessment id")
	token := flag.String("token", os.Getenv("PROCTOR_TOKEN"), "student JWT (default $PROCTOR_TOKEN)")
	secure := flag.Bool("tls", false, "use wss://")
	flag.Parse()

	// stdout belongs to the raw-mode screen; diagnostics go to stderr.
	log := logger.New(os.Stderr, "pretty")

	if *assessment == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "assessment and token are required")
		flag.Usage()
		os.Exit(2)
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     *addr,
		Path:     "/ws/v1/assessments/" + url.PathEscape(*assessment) + "/session",
		RawQuery: url.Values{"token": {*token}}.Encode(),
	}
	if *secure {
		u.Scheme = "wss"
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		ev := log.Fatal().Err(err).Str("host", u.Host).Str("path", u.Path)
		if resp != nil {
			ev = ev.Int("status", resp.StatusCode)
		}
		ev.Msg("Connect failed")
	}
	log.Info().Str("assessment", *assessment).Msg("Connected")
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		prev, err := term.MakeRaw(fd)
		if err != nil {
			log.Fatal().Err(err).Msg("Raw mode failed")
		}
		defer term.Restore(fd, prev)
	}

	c := &client{conn: conn}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readLoop()
	}()

	c.send(ws.Request{Action: ws.ActionStart})
	go c.keyLoop()

	<-done
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex

	stateMu sync.Mutex
	state   model.Snapshot
}

func (c *client) send(req ws.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(req); err != nil {
		printf("send failed: %v", err)
	}
}

func (c *client) current() model.Snapshot {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *client) keyLoop() {
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			c.conn.Close()
			return
		}
		b := buf[0]
		switch {
		case b >= '1' && b <= '9':
			st := c.current()
			q, o := st.CurrentIndex, int(b-'1')
			c.send(ws.Request{Action: ws.ActionSelect, Question: &q, Option: &o})
		case b == 'n':
			c.send(ws.Request{Action: ws.ActionAdvance})
		case b == 's':
			c.send(ws.Request{Action: ws.ActionSubmit})
		case b == 'v':
			c.send(ws.Request{Action: ws.ActionSignal, Signal: model.SignalVisibilityHidden})
		case b == 'q', b == 3: // Ctrl+C arrives as a byte in raw mode
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quit"))
			c.conn.Close()
			return
		}
	}
}

func (c *client) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				printf("connection closed: %v", err)
			}
			return
		}

		var head struct {
			Event ws.Event `json:"event"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}

		switch head.Event {
		case ws.EventState:
			var msg ws.StateResponse
			if json.Unmarshal(raw, &msg) == nil {
				c.stateMu.Lock()
				c.state = msg.State
				c.stateMu.Unlock()
				render(msg.State)
			}
		case ws.EventBanner:
			var msg ws.BannerResponse
			if json.Unmarshal(raw, &msg) == nil {
				printf("!! %s (%d/%d)", msg.Message, msg.WarningCount, msg.MaxWarnings)
			}
		case ws.EventError:
			var msg ws.ErrorResponse
			if json.Unmarshal(raw, &msg) == nil {
				printf("error: %s", msg.Error)
			}
		case ws.EventFullscreen:
			var msg ws.FullscreenResponse
			if json.Unmarshal(raw, &msg) == nil {
				printf("[fullscreen %s]", msg.Mode)
			}
		}
	}
}

func render(st model.Snapshot) {
	switch {
	case st.Loading:
		printf("Loading assessment...")
		return
	case st.Submitted && st.Score != nil:
		printf("Submitted. Score: %d%%", *st.Score)
		return
	case st.Phase == model.PhaseErrored:
		printf("Session ended: %s", st.Message)
		return
	case st.Submitting:
		printf("Submitting...")
		return
	case st.Message != "":
		printf("%s", st.Message)
	}

	if st.Question == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\r\n[%d/%d] %ds left  warnings %d/%d\r\n",
		st.CurrentIndex+1, st.QuestionCount, st.TimeRemaining, st.WarningCount, st.MaxWarnings)
	fmt.Fprintf(&b, "%s\r\n", st.Question.QuestionText)
	selected, answered := st.Answers[st.CurrentIndex]
	for i, opt := range st.Question.Options {
		mark := " "
		if answered && selected == i {
			mark = "*"
		}
		fmt.Fprintf(&b, " %s %d) %s\r\n", mark, i+1, opt)
	}
	os.Stdout.WriteString(b.String())
}

// printf writes one line; raw mode needs an explicit carriage return.
func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\r\n", args...)
}
