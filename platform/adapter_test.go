package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{401, false},
		{404, false},
		{422, false},
	}
	for _, tc := range cases {
		err := newHTTPError("shopify", tc.status, "boom")
		if got := IsRetryable(err); got != tc.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tc.status, got, tc.retryable)
		}
	}
}

func TestIsRetryableDefaultsTrueForUnknownErrors(t *testing.T) {
	if !IsRetryable(errors.New("connection reset")) {
		t.Fatalf("unknown errors must be treated as retryable")
	}
}

func TestShopifyReadResourceProduct(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "tok-123" {
			t.Errorf("access token header = %q", got)
		}
		var req shopifyGraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Variables["id"] != "gid://shopify/Product/42" {
			t.Errorf("id variable = %v", req.Variables["id"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"product":{"title":"Blue Shirt","seo":{"title":"Blue Shirt | Shop","description":"A very blue shirt."},"featuredImage":{"altText":"blue shirt on hanger"}}}}`))
	}))
	defer ts.Close()

	a := NewShopifyAdapter(ts.URL, "tok-123")
	got, err := a.ReadResource(context.Background(), ResourceRef{Type: "product", Id: "42"}, []string{"metaTitle", "metaDescription"})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if got["metaTitle"] != "Blue Shirt | Shop" {
		t.Fatalf("metaTitle = %q", got["metaTitle"])
	}
	if got["metaDescription"] != "A very blue shirt." {
		t.Fatalf("metaDescription = %q", got["metaDescription"])
	}
	if _, ok := got["altText"]; ok {
		t.Fatalf("altText was not requested but returned")
	}
}

func TestShopifyWriteResourceUserError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"productUpdate":{"userErrors":[{"field":"id","message":"Product not found"}]}}}`))
	}))
	defer ts.Close()

	a := NewShopifyAdapter(ts.URL, "tok-123")
	err := a.WriteResource(context.Background(), ResourceRef{Type: "product", Id: "42"}, Fields{"metaTitle": "x"})
	if err == nil {
		t.Fatalf("expected user error")
	}
	if IsRetryable(err) {
		t.Fatalf("userErrors are terminal, got retryable: %v", err)
	}
}

func TestShopifyThrottledGraphQLErrorIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":[{"message":"Throttled"}]}`))
	}))
	defer ts.Close()

	a := NewShopifyAdapter(ts.URL, "tok-123")
	_, err := a.ReadResource(context.Background(), ResourceRef{Type: "product", Id: "42"}, []string{"metaTitle"})
	if err == nil {
		t.Fatalf("expected throttle error")
	}
	if !IsRetryable(err) {
		t.Fatalf("throttled must be retryable: %v", err)
	}
}

func TestWordpressReadWriteRoundTrip(t *testing.T) {
	var written map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing Authorization header")
		}
		if r.URL.Path != "/wp-json/wp/v2/posts/7" {
			t.Errorf("path = %q", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"title":{"rendered":"Hello"},"meta":{"_seofix_meta_title":"Hello | Blog","_seofix_meta_description":""}}`))
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&written)
			w.Write([]byte(`{}`))
		}
	}))
	defer ts.Close()

	a := NewWordpressAdapter(ts.URL, "admin:pass word")

	got, err := a.ReadResource(context.Background(), ResourceRef{Type: "post", Id: "7"}, []string{"metaTitle", "metaDescription"})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if got["metaTitle"] != "Hello | Blog" || got["metaDescription"] != "" {
		t.Fatalf("read fields = %v", got)
	}

	err = a.WriteResource(context.Background(), ResourceRef{Type: "post", Id: "7"}, Fields{"metaDescription": "A greeting."})
	if err != nil {
		t.Fatalf("WriteResource: %v", err)
	}
	meta, ok := written["meta"].(map[string]interface{})
	if !ok || meta["_seofix_meta_description"] != "A greeting." {
		t.Fatalf("written body = %v", written)
	}
}

func TestWordpressServerErrorIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusBadGateway)
	}))
	defer ts.Close()

	a := NewWordpressAdapter(ts.URL, "admin:pw")
	_, err := a.ReadResource(context.Background(), ResourceRef{Type: "post", Id: "7"}, []string{"metaTitle"})
	if err == nil || !IsRetryable(err) {
		t.Fatalf("502 must be retryable, got %v", err)
	}
}

func TestShopifyCountResources(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req shopifyGraphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !strings.Contains(req.Query, "productsCount") {
			t.Errorf("query = %q", req.Query)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"productsCount":{"count":128}}}`))
	}))
	defer ts.Close()

	a := NewShopifyAdapter(ts.URL, "tok-123")
	got, err := a.CountResources(context.Background(), "product")
	if err != nil {
		t.Fatalf("CountResources: %v", err)
	}
	if got != 128 {
		t.Fatalf("count = %d, want 128", got)
	}

	if _, err := a.CountResources(context.Background(), "sitemap"); err == nil || IsRetryable(err) {
		t.Fatalf("unsupported type must be a terminal error, got %v", err)
	}
}

func TestWordpressCountResources(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/pages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("per_page") != "1" {
			t.Errorf("per_page = %q", r.URL.Query().Get("per_page"))
		}
		w.Header().Set("X-WP-Total", "37")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{}]`))
	}))
	defer ts.Close()

	a := NewWordpressAdapter(ts.URL, "admin:pw")
	got, err := a.CountResources(context.Background(), "page")
	if err != nil {
		t.Fatalf("CountResources: %v", err)
	}
	if got != 37 {
		t.Fatalf("count = %d, want 37", got)
	}
}

func TestWordpressCountResourcesMissingTotalHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	a := NewWordpressAdapter(ts.URL, "admin:pw")
	_, err := a.CountResources(context.Background(), "post")
	if err == nil {
		t.Fatalf("expected error for missing X-WP-Total")
	}
	if IsRetryable(err) {
		t.Fatalf("missing total header is terminal, got retryable: %v", err)
	}
}

func TestUnsupportedResourceType(t *testing.T) {
	a := NewShopifyAdapter("example.myshopify.com", "tok")
	_, err := a.ReadResource(context.Background(), ResourceRef{Type: "sitemap", Id: "1"}, nil)
	if err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if IsRetryable(err) {
		t.Fatalf("unsupported type is terminal")
	}
}
