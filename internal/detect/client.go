package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dj-oyu/facecam/pkg/types"
)

const (
	// FormField and FileName are what the detector expects in the multipart body.
	FormField = "image"
	FileName  = "frame.jpg"

	maxBodyBytes = 4 << 20
)

// Detector is the part of Client the capture loop depends on.
type Detector interface {
	Detect(ctx context.Context, baseURL string, jpeg []byte) (*types.DetectionResponse, error)
}

// Client talks to the remote detection service.
// The base URL is passed per call because the operator can change it at runtime.
type Client struct {
	http *http.Client
}

// NewClient returns a client with the given request timeout (5s when zero).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NormalizeBaseURL trims surrounding space and trailing slashes.
func NormalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// HealthResult is the text answer of GET /health.
type HealthResult struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx answer.
func (h HealthResult) OK() bool {
	return h.StatusCode >= 200 && h.StatusCode <= 299
}

// Health calls GET {base}/health. Only transport failures are returned as errors;
// a non-2xx answer is reported through HealthResult.OK.
func (c *Client) Health(ctx context.Context, baseURL string) (HealthResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeBaseURL(baseURL)+"/health", nil)
	if err != nil {
		return HealthResult{}, &TransportError{Op: "health", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return HealthResult{}, &TransportError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return HealthResult{}, &TransportError{Op: "health", Err: err}
	}
	return HealthResult{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

// Detect uploads one JPEG frame to POST {base}/detect.
func (c *Client) Detect(ctx context.Context, baseURL string, jpeg []byte) (*types.DetectionResponse, error) {
	body, contentType, err := encodeFrame(jpeg)
	if err != nil {
		return nil, &TransportError{Op: "detect", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, NormalizeBaseURL(baseURL)+"/detect", body)
	if err != nil {
		return nil, &TransportError{Op: "detect", Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	var out types.DetectionResponse
	if err := c.doJSON(req, "detect", &out); err != nil {
		return nil, err
	}
	if out.Faces == nil {
		out.Faces = []types.Box{}
	}
	return &out, nil
}

func encodeFrame(jpeg []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, FileName))
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// doJSON executes req and decodes a 2xx JSON body into out.
func (c *Client) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &DetectionError{Op: op, StatusCode: resp.StatusCode, Body: raw}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			derr.Message = payload.Error
		}
		return derr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Record is one stored detection on the detector side.
type Record struct {
	ID          int64       `json:"id"`
	Timestamp   string      `json:"timestamp"`
	FaceCount   int         `json:"face_count"`
	Faces       []types.Box `json:"faces"`
	ImageWidth  int         `json:"image_width"`
	ImageHeight int         `json:"image_height"`
}

// RecordPage is the answer of GET /records.
type RecordPage struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// RecordStats is the answer of GET /records/stats.
type RecordStats struct {
	TotalRecords             int     `json:"total_records"`
	TotalFacesDetected       int     `json:"total_faces_detected"`
	AverageFacesPerDetection float64 `json:"average_faces_per_detection"`
	LastDetectionTime        *string `json:"last_detection_time"`
}

// Records lists stored detections, newest first. Zero limit means the server default.
func (c *Client) Records(ctx context.Context, baseURL string, limit, offset int) (*RecordPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	target := NormalizeBaseURL(baseURL) + "/records"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var page RecordPage
	if err := c.getJSON(ctx, target, "records", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Record fetches one stored detection.
func (c *Client) Record(ctx context.Context, baseURL string, id int64) (*Record, error) {
	var rec Record
	target := fmt.Sprintf("%s/records/%d", NormalizeBaseURL(baseURL), id)
	if err := c.getJSON(ctx, target, "record", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Stats fetches aggregate record statistics.
func (c *Client) Stats(ctx context.Context, baseURL string) (*RecordStats, error) {
	var stats RecordStats
	if err := c.getJSON(ctx, NormalizeBaseURL(baseURL)+"/records/stats", "stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) getJSON(ctx context.Context, target, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return c.doJSON(req, op, out)
}
