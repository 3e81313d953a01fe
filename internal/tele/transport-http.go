package tele

import (
	"bytes"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/juju/errors"
)

const DefaultHTTPTimeout = 30 * time.Second

// transportHTTP posts directly from host with network, bench and simulator use.
type transportHTTP struct {
	client *http.Client
}

func NewHTTPTransport(client *http.Client) Transporter {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &transportHTTP{client: client}
}

func (self *transportHTTP) Post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Annotate(err, "tele http")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := self.client.Do(req)
	if err != nil {
		return errors.Annotate(err, "tele http")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(ioutil.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	}
	return errors.Errorf("tele http status=%s", resp.Status)
}
