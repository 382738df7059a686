package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"healthrelay/internal/domain"
)

// finalizeTokenHeader carries the finalize token on chunk uploads.
const finalizeTokenHeader = "X-Finalize-Token"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// DefaultRequestTimeout bounds one relay request.
const DefaultRequestTimeout = 30 * time.Second

// HTTP talks to a relay over HTTP.
type HTTP struct {
	Base string
	HTTP *http.Client
	// RequestTimeout bounds each request, DefaultRequestTimeout if zero.
	// A long-poll is allowed its own wait on top of it.
	RequestTimeout time.Duration
}

// NewHTTP returns a client for the relay at base.
func NewHTTP(base string) *HTTP {
	return &HTTP{
		Base:           strings.TrimRight(base, "/"),
		HTTP:           http.DefaultClient,
		RequestTimeout: DefaultRequestTimeout,
	}
}

func sessionPath(id domain.SessionID) string {
	return "/api/sessions/" + url.PathEscape(id.String())
}

func (c *HTTP) CreateSession(ctx context.Context, publicKey domain.JWK) (domain.SessionTicket, error) {
	var out domain.SessionTicket
	err := c.post(ctx, "/api/sessions", domain.CreateSessionRequest{PublicKey: publicKey.Public()}, &out)
	return out, err
}

func (c *HTTP) GetSessionInfo(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	var info domain.SessionInfo
	err := c.getJSON(ctx, 0, sessionPath(id), &info)
	return info, err
}

func (c *HTTP) IngestProvider(
	ctx context.Context,
	id domain.SessionID,
	env domain.Envelope,
	finalizeToken string,
) (int, error) {
	var out domain.CountResponse
	err := c.post(ctx, sessionPath(id)+"/providers", domain.IngestRequest{
		FinalizeToken: finalizeToken,
		Envelope:      env,
	}, &out)
	return out.ProviderCount, err
}

func (c *HTTP) StageChunk(
	ctx context.Context,
	id domain.SessionID,
	uploadID domain.UploadID,
	index int,
	finalizeToken string,
	data []byte,
) error {
	path := sessionPath(id) + "/uploads/" + url.PathEscape(uploadID.String()) + "/chunks/" + strconv.Itoa(index)
	req, cancel, err := c.newRequest(ctx, 0, http.MethodPut, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer cancel()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(finalizeTokenHeader, finalizeToken)
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "put", path)
}

func (c *HTTP) FinalizeSession(ctx context.Context, id domain.SessionID, finalizeToken string) (int, error) {
	var out domain.CountResponse
	err := c.post(ctx, sessionPath(id)+"/finalize", domain.FinalizeRequest{FinalizeToken: finalizeToken}, &out)
	return out.ProviderCount, err
}

// PollSession long-polls the relay. The request may run for timeout plus
// the client's RequestTimeout.
func (c *HTTP) PollSession(
	ctx context.Context,
	id domain.SessionID,
	timeout time.Duration,
) (domain.PollResult, error) {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	var out domain.PollResult
	err := c.getJSON(ctx, max(timeout, 0), sessionPath(id)+"/poll?timeout="+secs, &out)
	return out, err
}

func (c *HTTP) FetchChunk(
	ctx context.Context,
	id domain.SessionID,
	providerIndex int,
	chunkIndex int,
) ([]byte, error) {
	path := fmt.Sprintf("%s/providers/%d/chunks/%d", sessionPath(id), providerIndex, chunkIndex)
	req, cancel, err := c.newRequest(ctx, 0, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "get", path); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, req, err)
	}
	return b, nil
}

func (c *HTTP) DeleteSession(ctx context.Context, id domain.SessionID) error {
	path := sessionPath(id)
	req, cancel, err := c.newRequest(ctx, 0, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer cancel()
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, "delete", path)
}

func (c *HTTP) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, cancel, err := c.newRequest(ctx, 0, http.MethodPost, path, buf)
	if err != nil {
		return err
	}
	defer cancel()
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "post", path); err != nil {
		return err
	}
	if out != nil {
		return decode(ctx, req, resp, out)
	}
	return nil
}

// getJSON GETs path into out. extra widens the request timeout for calls
// the relay may hold open.
func (c *HTTP) getJSON(ctx context.Context, extra time.Duration, path string, out any) error {
	req, cancel, err := c.newRequest(ctx, extra, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer cancel()
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "get", path); err != nil {
		return err
	}
	return decode(ctx, req, resp, out)
}

// newRequest builds a request bounded by RequestTimeout plus extra. The
// returned cancel must be called once the response body is consumed.
func (c *HTTP) newRequest(
	ctx context.Context,
	extra time.Duration,
	method, path string,
	body io.Reader,
) (*http.Request, context.CancelFunc, error) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout+extra)
	req, err := http.NewRequestWithContext(rctx, method, c.Base+path, body)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return req, cancel, nil
}

// do sends req. ctx is the caller's context, req carries it plus the
// request timeout.
func (c *HTTP) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, transportError(ctx, req, err)
	}
	return resp, nil
}

func decode(ctx context.Context, req *http.Request, resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if req.Context().Err() != nil {
			return transportError(ctx, req, err)
		}
		return err
	}
	return nil
}

// transportError reports a failed exchange as transient unless the caller's
// context ended. Hitting the request timeout counts as transient.
func transportError(ctx context.Context, req *http.Request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return domain.Errorf(domain.ErrUnavailable, "relay %s %s: %v",
		strings.ToLower(req.Method), req.URL.Path, err)
}

// checkStatus turns a non-2xx answer into a domain error.
func checkStatus(resp *http.Response, verb, path string) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e domain.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if base := domain.ErrorByCode(e.Error); base != nil {
			return domain.Errorf(base, "%s", e.Message)
		}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.Errorf(domain.ErrUnavailable, "relay %s %s: %s", verb, path, resp.Status)
	}
	return errors.New("relay " + verb + " " + path + ": " + resp.Status)
}

var _ domain.RelayClient = (*HTTP)(nil)
