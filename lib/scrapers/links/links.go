package links

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"nightout/lib/htmlutil"
	"nightout/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/links")

type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/links/http")

	return &Client{http: client}
}

// Discover fetches a page and returns the absolute http(s) targets of
// every anchor on it, deduplicated and sorted.
func (c *Client) Discover(ctx context.Context, pageUrl string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:Discover")
	defer span.End()
	span.SetAttributes(attribute.String("url", pageUrl))

	base, err := url.Parse(pageUrl)
	if err != nil {
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(pageUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		return nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "unexpected status")
		return nil, fmt.Errorf("fetch %s: unexpected status %d", pageUrl, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	seen := map[string]bool{}
	var out []string
	for _, anchor := range htmlutil.ResolveAnchors(base, doc.Find("a[href]")) {
		if !strings.HasPrefix(anchor.Href, "http://") &&
			!strings.HasPrefix(anchor.Href, "https://") {
			continue
		}
		if seen[anchor.Href] {
			continue
		}
		seen[anchor.Href] = true
		out = append(out, anchor.Href)
	}

	slices.Sort(out)
	return out, nil
}
