package nodeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const apiPrefix = "/api/v3/"

// HTTPClient implements the Client interface against the relay node's REST
// control plane.
type HTTPClient struct {
	host   string
	token  string
	client *http.Client
	logger *logrus.Entry
}

// NewHTTPClient ...
func NewHTTPClient(host, token string, timeout time.Duration, logger *logrus.Entry) *HTTPClient {
	return &HTTPClient{
		host:  host,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *HTTPClient) call(method, endpoint string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.host+apiPrefix+endpoint, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Debug("API call failed")
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return nil
}

// ResolveOwnAddress implements the Client interface.
func (c *HTTPClient) ResolveOwnAddress() (string, error) {
	var addresses struct {
		Native string `json:"native"`
	}

	if err := c.call(http.MethodGet, "account/addresses", nil, &addresses); err != nil {
		return "", ErrUnreachable
	}

	return addresses.Native, nil
}

type createSessionBody struct {
	Destination string                 `json:"destination"`
	ListenHost  string                 `json:"listenHost"`
	Path        map[string]interface{} `json:"path"`
	Target      map[string]string      `json:"target"`
}

// OpenSession implements the Client interface.
func (c *HTTPClient) OpenSession(destination, relayer, listenHost string, protocol Protocol) (*Session, error) {
	body := createSessionBody{
		Destination: destination,
		ListenHost:  listenHost,
		Path:        map[string]interface{}{"IntermediatePath": []string{relayer}},
		Target:      map[string]string{"Plain": destination},
	}

	session := &Session{}
	if err := c.call(http.MethodPost, "session/"+string(protocol), body, session); err != nil {
		return nil, err
	}

	session.Protocol = protocol
	session.Target = destination

	return session, nil
}

type deleteSessionBody struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// CloseSession implements the Client interface.
func (c *HTTPClient) CloseSession(session *Session) error {
	body := deleteSessionBody{
		IP:   session.IP,
		Port: session.Port,
	}

	return c.call(http.MethodDelete, "session/"+string(session.Protocol), body, nil)
}

type popAllBody struct {
	Tag int `json:"tag"`
}

// PopAllMessages implements the Client interface.
func (c *HTTPClient) PopAllMessages(tag int) ([][]byte, error) {
	var inbox struct {
		Messages []struct {
			Body string `json:"body"`
		} `json:"messages"`
	}

	if err := c.call(http.MethodPost, "messages/pop-all", popAllBody{Tag: tag}, &inbox); err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(inbox.Messages))
	for i, m := range inbox.Messages {
		payloads[i] = []byte(m.Body)
	}

	return payloads, nil
}

// ChannelBalance implements the Client interface. It scans the node's
// outgoing channels for one towards `to`.
func (c *HTTPClient) ChannelBalance(from, to string) (float64, error) {
	var channels struct {
		Outgoing []struct {
			PeerAddress string  `json:"peerAddress"`
			Balance     float64 `json:"balance,string"`
		} `json:"outgoing"`
	}

	if err := c.call(http.MethodGet, "channels", nil, &channels); err != nil {
		return 0, err
	}

	for _, channel := range channels.Outgoing {
		if channel.PeerAddress == to {
			return channel.Balance, nil
		}
	}

	return 0, nil
}
