package overlay

import (
	"context"
	"sync"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const clientBuffer = 64

// Client reads the observer stream of a perfd server.
type Client struct {
	conn *websocket.Conn
	log  logger.Logger
	msgs chan session.Message
	once sync.Once
	done chan struct{}
}

// Dial connects to the observer endpoint, e.g. ws://127.0.0.1:7412/v1/observe.
func Dial(ctx context.Context, url string, log logger.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrUnavailable, err).WithData(url)
	}

	c := &Client{
		conn: conn,
		log:  log,
		msgs: make(chan session.Message, clientBuffer),
		done: make(chan struct{}),
	}
	go c.read()

	return c, nil
}

// Messages is closed when the connection ends.
func (c *Client) Messages() <-chan session.Message {
	return c.msgs
}

func (c *Client) read() {
	defer close(c.msgs)
	for {
		var m session.Message
		if err := c.conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("Observer stream ended")
			}
			return
		}
		select {
		case c.msgs <- m:
		case <-c.done:
			return
		}
	}
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Run shows the overlay until the user quits or ctx is cancelled.
func Run(ctx context.Context, url string, log logger.Logger) error {
	c, err := Dial(ctx, url, log)
	if err != nil {
		return err
	}
	defer c.Close()

	p := tea.NewProgram(NewModel(c.Messages()), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
