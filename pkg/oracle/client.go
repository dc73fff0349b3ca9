package oracle

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"mvprep/pkg/flow"
	"mvprep/pkg/mask"
)

// Endpoints served by a model server.
const (
	SegmentPath       = "/segment"
	SegmentPromptPath = "/segment/prompt"
	FlowPath          = "/flow"
	HealthPath        = "/health"
)

// Client calls segmentation and flow models hosted behind an HTTP server.
// Images travel as PNG form files; masks come back as PNG and flow fields in the
// binary encoding of flow.Field.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Segment requests an unprompted segmentation.
func (c *Client) Segment(ctx context.Context, img image.Image) (*mask.Mask, error) {
	body, err := c.post(ctx, SegmentPath, []formFile{{"file", img}}, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return decodeMask(body, img.Bounds())
}

// SegmentWithPrompt requests a segmentation seeded by a prior mask or box.
func (c *Client) SegmentWithPrompt(ctx context.Context, img image.Image, p Prompt) (*mask.Mask, error) {
	files := []formFile{{"file", img}}
	fields := map[string]string{}
	if p.Mask != nil {
		files = append(files, formFile{"prompt_mask", p.Mask.Gray()})
	}
	if p.Box != nil {
		fields["box"] = fmt.Sprintf("%d,%d,%d,%d", p.Box.Min.X, p.Box.Min.Y, p.Box.Max.X, p.Box.Max.Y)
	}
	body, err := c.post(ctx, SegmentPromptPath, files, fields)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return decodeMask(body, img.Bounds())
}

// EstimateFlow requests the displacement field from a to b.
func (c *Client) EstimateFlow(ctx context.Context, a, b image.Image) (*flow.Field, error) {
	body, err := c.post(ctx, FlowPath, []formFile{{"image0", a}, {"image1", b}}, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	f, err := flow.Decode(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode flow response")
	}
	if f.Width != a.Bounds().Dx() || f.Height != a.Bounds().Dy() {
		return nil, errors.Errorf("flow field %dx%d does not match image %dx%d",
			f.Width, f.Height, a.Bounds().Dx(), a.Bounds().Dy())
	}
	return f, nil
}

// CheckHealth verifies that the model server is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+HealthPath, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("model server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

type formFile struct {
	field string
	img   image.Image
}

func (c *Client) post(ctx context.Context, path string, files []formFile, fields map[string]string) (io.ReadCloser, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.field+".png")
		if err != nil {
			return nil, errors.Wrap(err, "create form file")
		}
		if err := png.Encode(part, f.img); err != nil {
			return nil, errors.Wrapf(err, "encode %s", f.field)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, errors.Wrapf(err, "write field %s", k)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errors.Errorf("%s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

func decodeMask(r io.Reader, bounds image.Rectangle) (*mask.Mask, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode mask response")
	}
	m := mask.FromImage(img)
	if m.Width != bounds.Dx() || m.Height != bounds.Dy() {
		return nil, errors.Errorf("mask %dx%d does not match image %dx%d", m.Width, m.Height, bounds.Dx(), bounds.Dy())
	}
	return m, nil
}
