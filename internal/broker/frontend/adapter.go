package frontend

import (
	"context"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"resty.dev/v3"

	"github.com/baca2/kolejka-broker/pkg/protocol"
)

var log = logging.Logger("broker/frontend")

// Messenger notifies the front end of a submission's outcome (spec.md
// §4.4). SendError is best-effort: a failure to deliver it must never
// itself trigger another trash cycle.
type Messenger interface {
	SendSuccess(ctx context.Context, msg protocol.BrokerToBaca) error
	SendError(ctx context.Context, msg protocol.BrokerToBacaError)
}

// BacaMessenger is the production Messenger, grounded on
// pkg/client/piri.go's resty.Client usage.
type BacaMessenger struct {
	Client     *resty.Client
	SuccessURL string
	ErrorURL   string
}

// NewBacaMessenger constructs a BacaMessenger posting to successURL and
// errorURL (spec.md §6 config keys front_end_success_url /
// front_end_error_url).
func NewBacaMessenger(successURL, errorURL string) *BacaMessenger {
	return &BacaMessenger{
		Client:     resty.New(),
		SuccessURL: successURL,
		ErrorURL:   errorURL,
	}
}

// SendSuccess posts a completed submission's results. A failure here is
// surfaced to the caller, which trashes the TaskSubmit (spec.md §7
// FrontEndError).
func (m *BacaMessenger) SendSuccess(ctx context.Context, msg protocol.BrokerToBaca) error {
	res, err := m.Client.R().
		SetContext(ctx).
		SetContentType("application/json").
		SetBody(msg).
		Post(m.SuccessURL)
	if err != nil {
		return err
	}
	if res.StatusCode() != http.StatusOK {
		return &StatusError{URL: m.SuccessURL, StatusCode: res.StatusCode()}
	}
	return nil
}

// SendError posts a submission failure. Delivery failures are logged,
// never returned: a front end that cannot be reached about an error is
// not grounds for further broker-side action (spec.md §4.4, §7).
func (m *BacaMessenger) SendError(ctx context.Context, msg protocol.BrokerToBacaError) {
	res, err := m.Client.R().
		SetContext(ctx).
		SetContentType("application/json").
		SetBody(msg).
		Post(m.ErrorURL)
	if err != nil {
		log.Warnw("failed to deliver error notification to front end", "submit_id", msg.SubmitID, "error", err)
		return
	}
	if res.IsError() {
		log.Warnw("front end rejected error notification", "submit_id", msg.SubmitID, "status", res.StatusCode())
	}
}

// StatusError indicates the front end responded to a success
// notification with any status other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return "front end returned non-success status for " + e.URL
}
