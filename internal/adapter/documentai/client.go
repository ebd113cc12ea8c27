package documentai

import (
	"context"
	"fmt"
	"log/slog"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"resumeingest/internal/worker"
)

// Client extracts text with a Document AI OCR processor.
type Client struct {
	client    *documentai.DocumentProcessorClient
	processor string
}

// RegionalEndpoint returns the gRPC endpoint serving processors in location.
func RegionalEndpoint(location string) string {
	return fmt.Sprintf("%s-documentai.googleapis.com:443", location)
}

// New dials Document AI. processor is the full resource name
// projects/{p}/locations/{l}/processors/{id}.
func New(ctx context.Context, processor string, opts ...option.ClientOption) (*Client, error) {
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create document ai client: %w", err)
	}
	return &Client{client: c, processor: processor}, nil
}

func (c *Client) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	req := &documentaipb.ProcessRequest{
		Name: c.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: mimeType,
			},
		},
	}

	resp, err := c.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", worker.ErrExtractionFailed, err)
	}

	text := resp.GetDocument().GetText()
	slog.DebugContext(ctx, "document processed", "processor", c.processor, "pages", len(resp.GetDocument().GetPages()), "chars", len(text))
	return text, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
