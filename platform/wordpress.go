package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WordpressAdapter talks to the WordPress REST API (wp/v2) with an application
// password. SEO title/description live in post meta written by the companion
// plugin; alt text uses the core media field.
type WordpressAdapter struct {
	siteURL string
	auth    string
	http    *http.Client
}

// NewWordpressAdapter takes credential in "user:application-password" form.
func NewWordpressAdapter(siteURL string, credential string) *WordpressAdapter {
	return &WordpressAdapter{
		siteURL: strings.TrimRight(siteURL, "/"),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(credential)),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *WordpressAdapter) endpoint(ref ResourceRef) (string, error) {
	site := a.siteURL
	if !strings.HasPrefix(site, "http") {
		site = "https://" + site
	}
	var collection string
	switch ref.Type {
	case "post":
		collection = "posts"
	case "page":
		collection = "pages"
	case "media":
		collection = "media"
	default:
		return "", &Error{Provider: "wordpress", Message: "unsupported resource type: " + ref.Type}
	}
	return fmt.Sprintf("%s/wp-json/wp/v2/%s/%s", site, collection, ref.Id), nil
}

func (a *WordpressAdapter) do(ctx context.Context, method string, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", a.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, newTransportError("wordpress", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError("wordpress", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

type wordpressResource struct {
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	AltText string `json:"alt_text"`
	Meta    struct {
		SeoTitle       string `json:"_seofix_meta_title"`
		SeoDescription string `json:"_seofix_meta_description"`
	} `json:"meta"`
}

func (a *WordpressAdapter) ReadResource(ctx context.Context, ref ResourceRef, fields []string) (Fields, error) {
	endpoint, err := a.endpoint(ref)
	if err != nil {
		return nil, err
	}
	raw, err := a.do(ctx, http.MethodGet, endpoint+"?context=edit", nil)
	if err != nil {
		return nil, err
	}

	var res wordpressResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, newTransportError("wordpress", err)
	}

	live := Fields{
		"metaTitle":       res.Meta.SeoTitle,
		"metaDescription": res.Meta.SeoDescription,
		"h1":              res.Title.Rendered,
		"altText":         res.AltText,
	}
	out := Fields{}
	for _, f := range fields {
		out[f] = live[f]
	}
	return out, nil
}

// CountResources uses the X-WP-Total header the REST API sets on collection
// responses, so one minimal page is enough.
func (a *WordpressAdapter) CountResources(ctx context.Context, resourceType string) (int, error) {
	endpoint, err := a.endpoint(ResourceRef{Type: resourceType, Id: ""})
	if err != nil {
		return 0, err
	}
	endpoint = strings.TrimRight(endpoint, "/") + "?per_page=1"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", a.auth)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, newTransportError("wordpress", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, newHTTPError("wordpress", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	total := resp.Header.Get("X-WP-Total")
	count, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil {
		return 0, &Error{Provider: "wordpress", Message: "missing X-WP-Total header"}
	}
	return count, nil
}

func (a *WordpressAdapter) WriteResource(ctx context.Context, ref ResourceRef, changes Fields) error {
	endpoint, err := a.endpoint(ref)
	if err != nil {
		return err
	}

	body := map[string]interface{}{}
	meta := map[string]interface{}{}
	if v, ok := changes["metaTitle"]; ok {
		meta["_seofix_meta_title"] = v
	}
	if v, ok := changes["metaDescription"]; ok {
		meta["_seofix_meta_description"] = v
	}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	if v, ok := changes["h1"]; ok {
		body["title"] = v
	}
	if v, ok := changes["altText"]; ok {
		body["alt_text"] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, http.MethodPost, endpoint, payload)
	return err
}
