package binance

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"option-taker/internal/core"
)

// APIError is the exchange's error envelope, returned inside both non-2xx
// responses and (for some options endpoints) 2xx bodies.
type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "binance api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

// HTTPError is a non-2xx response that carried no parseable error envelope.
type HTTPError struct {
	Status int
	Body   string
}

func (e HTTPError) Error() string {
	return "binance http error " + strconv.Itoa(e.Status) + ": " + e.Body
}

const (
	apiCodeNewOrderRejected = -2010
	apiCodeCancelRejected   = -2011
	apiCodeOrderNotFound    = -2013
)

var apiErrorMessageKinds = map[string]error{
	"duplicate order sent.":                                  core.ErrDuplicateOrder,
	"account has insufficient balance for requested action.": core.ErrInsufficientBalance,
	"balance is insufficient.":                               core.ErrInsufficientBalance,
	"unknown order sent.":                                    core.ErrOrderNotFound,
	"order does not exist.":                                  core.ErrOrderNotFound,
	"order was canceled or expired.":                         core.ErrOrderExpired,
}

// classifyHTTPError maps a non-2xx response onto the error taxonomy: 401 and
// 403 get their dedicated never-retry sentinels, everything else surfaces
// with status and body, joined with an APIError when the body parses.
func classifyHTTPError(status int, body []byte) error {
	base := error(HTTPError{Status: status, Body: previewBody(body)})
	if apiErr, ok := errorEnvelope(body); ok {
		base = classifyAPIError(apiErr)
	}
	switch status {
	case http.StatusUnauthorized:
		return errors.Join(core.ErrUnauthorized, base)
	case http.StatusForbidden:
		return errors.Join(core.ErrForbidden, base)
	}
	return base
}

// errorEnvelope extracts a {code,msg} envelope. A zero code with an empty
// message is not an error envelope.
func errorEnvelope(body []byte) (APIError, bool) {
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return APIError{}, false
	}
	if parsed.Msg == "" && parsed.Code == 0 {
		return APIError{}, false
	}
	return APIError{Code: parsed.Code, Msg: parsed.Msg}, true
}

func classifyAPIError(apiErr APIError) error {
	kinds := classifyAPIErrorKinds(apiErr)
	if len(kinds) == 0 {
		return apiErr
	}
	errChain := make([]error, 0, 1+len(kinds))
	errChain = append(errChain, apiErr)
	errChain = append(errChain, kinds...)
	return errors.Join(errChain...)
}

func classifyAPIErrorKinds(apiErr APIError) []error {
	kinds := make([]error, 0, 2)
	normalizedMsg := strings.ToLower(strings.TrimSpace(apiErr.Msg))

	switch apiErr.Code {
	case apiCodeOrderNotFound, apiCodeCancelRejected:
		kinds = appendErrorKind(kinds, core.ErrOrderNotFound)
	case apiCodeNewOrderRejected:
		if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
			kinds = appendErrorKind(kinds, kind)
		} else {
			kinds = appendErrorKind(kinds, core.ErrOrderRejected)
		}
	}

	if kind, ok := apiErrorMessageKinds[normalizedMsg]; ok {
		kinds = appendErrorKind(kinds, kind)
	}

	return kinds
}

func appendErrorKind(kinds []error, kind error) []error {
	if kind == nil {
		return kinds
	}
	for _, existing := range kinds {
		if existing == kind {
			return kinds
		}
	}
	return append(kinds, kind)
}

func AsAPIError(err error) (APIError, bool) {
	if err == nil {
		return APIError{}, false
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}

func IsAPIErrorCode(err error, codes ...int) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	for _, code := range codes {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}
